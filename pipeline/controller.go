package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ControllerConfig holds resource limits for a pipeline job.
type ControllerConfig struct {
	// MemoryLimitBytes bounds the trace buffers held in flight.
	// 0 disables the limit (usage is still tracked).
	MemoryLimitBytes int64

	// IOLimitBytesPerSec throttles gather writes to external storage.
	// 0 means unlimited.
	IOLimitBytesPerSec int64
}

// Controller bounds the memory and IO of one pipeline job. Chunk workers
// acquire memory for their trace buffers before reading and release it
// after their nodes have run; blob gatherers wait on the IO limiter
// before each write.
type Controller struct {
	memSem    *semaphore.Weighted // nil if unlimited
	memUsed   atomic.Int64
	ioLimiter *rate.Limiter
}

// NewController creates a resource controller.
func NewController(cfg ControllerConfig) *Controller {
	c := &Controller{}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// AcquireMemory reserves bytes for a chunk buffer, blocking until capacity
// is available or ctx is canceled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns bytes reserved with AcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.memUsed.Add(-bytes)
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
}

// MemoryUsed returns the bytes currently reserved.
func (c *Controller) MemoryUsed() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// WaitIO blocks until n bytes of IO budget are available. Requests larger
// than the burst are split so WaitN never rejects them outright.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil || n <= 0 {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for n > 0 {
		take := n
		if take > burst {
			take = burst
		}
		if err := c.ioLimiter.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}
