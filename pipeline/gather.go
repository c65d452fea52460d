package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/spikego/blobstore"
	"github.com/hupe1980/spikego/codec"
	"github.com/hupe1980/spikego/internal/blockio"
)

// GatherMode selects where a job's output rows accumulate.
type GatherMode string

const (
	// GatherMemory keeps all rows in RAM.
	GatherMemory GatherMode = "memory"
	// GatherBlob spills compressed per-chunk row blobs to a BlobStore.
	GatherBlob GatherMode = "blob"
)

// Gatherer accumulates the output rows of a job. Collect is called from
// chunk workers and must be safe for concurrent use; Finalize returns all
// rows concatenated in chunk order, which is spike-vector order.
type Gatherer[T any] interface {
	Collect(ctx context.Context, chunk Chunk, rows []T) error
	Finalize(ctx context.Context) ([]T, error)
}

// MemoryGatherer collects rows in memory.
type MemoryGatherer[T any] struct {
	mu     sync.Mutex
	chunks map[int][]T
}

var _ Gatherer[int] = (*MemoryGatherer[int])(nil)

// NewMemoryGatherer creates an in-memory gatherer.
func NewMemoryGatherer[T any]() *MemoryGatherer[T] {
	return &MemoryGatherer[T]{chunks: make(map[int][]T)}
}

// Collect implements Gatherer.
func (g *MemoryGatherer[T]) Collect(_ context.Context, chunk Chunk, rows []T) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chunks[chunk.Index] = rows
	return nil
}

// Finalize implements Gatherer.
func (g *MemoryGatherer[T]) Finalize(_ context.Context) ([]T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []T
	for i := 0; i < len(g.chunks); i++ {
		rows, ok := g.chunks[i]
		if !ok {
			return nil, fmt.Errorf("missing rows for chunk %d", i)
		}
		out = append(out, rows...)
	}
	return out, nil
}

// BlobGatherer spills each chunk's rows to a BlobStore as a compressed
// block and reads them back on Finalize. Use it when the gathered output
// does not fit in memory or must survive the process.
type BlobGatherer[T any] struct {
	store       blobstore.BlobStore
	codec       codec.Codec
	jobName     string
	compression blockio.Compression
	controller  *Controller

	mu      sync.Mutex
	indices []int
}

var _ Gatherer[int] = (*BlobGatherer[int])(nil)

// NewBlobGatherer creates a blob-backed gatherer. When c is nil
// codec.Default is used; controller may be nil.
func NewBlobGatherer[T any](store blobstore.BlobStore, c codec.Codec, jobName string, controller *Controller) *BlobGatherer[T] {
	if c == nil {
		c = codec.Default
	}
	return &BlobGatherer[T]{
		store:       store,
		codec:       c,
		jobName:     jobName,
		compression: blockio.CompressionLZ4,
		controller:  controller,
	}
}

func (g *BlobGatherer[T]) chunkName(index int) string {
	return fmt.Sprintf("%s/chunk_%06d", g.jobName, index)
}

// Collect implements Gatherer.
func (g *BlobGatherer[T]) Collect(ctx context.Context, chunk Chunk, rows []T) error {
	encoded, err := g.codec.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode chunk %d: %w", chunk.Index, err)
	}
	block, err := blockio.Compress(encoded, g.compression)
	if err != nil {
		return fmt.Errorf("compress chunk %d: %w", chunk.Index, err)
	}
	if err := g.controller.WaitIO(ctx, len(block)); err != nil {
		return err
	}
	if err := g.store.Put(ctx, g.chunkName(chunk.Index), block); err != nil {
		return fmt.Errorf("store chunk %d: %w", chunk.Index, err)
	}

	g.mu.Lock()
	g.indices = append(g.indices, chunk.Index)
	g.mu.Unlock()
	return nil
}

// Finalize implements Gatherer.
func (g *BlobGatherer[T]) Finalize(ctx context.Context) ([]T, error) {
	g.mu.Lock()
	count := len(g.indices)
	g.mu.Unlock()

	var out []T
	for i := 0; i < count; i++ {
		block, err := blobstore.ReadAll(ctx, g.store, g.chunkName(i))
		if err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", i, err)
		}
		encoded, err := blockio.Decompress(block, g.compression)
		if err != nil {
			return nil, fmt.Errorf("decompress chunk %d: %w", i, err)
		}
		var rows []T
		if err := g.codec.Unmarshal(encoded, &rows); err != nil {
			return nil, fmt.Errorf("decode chunk %d: %w", i, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}
