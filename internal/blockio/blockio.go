// Package blockio implements the compressed block format used for array
// blobs: gathered spike locations, saved templates and raw trace chunks.
//
// Block layout: [UncompressedSize uint32][CompressedSize uint32][Data...].
// A CompressedSize of 0 marks an uncompressed block, which is what gets
// written when compression does not pay off.
package blockio

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression algorithm.
type Compression uint8

const (
	// CompressionNone stores blocks verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 favors speed, for hot intermediate chunks.
	CompressionLZ4 Compression = 1
	// CompressionZSTD favors ratio, for saved analyzer folders.
	CompressionZSTD Compression = 2
)

const headerSize = 8

var (
	// ErrShortBlock is returned when a block is truncated.
	ErrShortBlock = errors.New("blockio: block too small")
	// ErrSizeMismatch is returned when decompression yields an unexpected size.
	ErrSizeMismatch = errors.New("blockio: decompressed size mismatch")
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Compress encodes data as one block. If the compressed payload would not
// be at least 10% smaller than the input, the block is stored uncompressed.
func Compress(data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	var err error

	switch c {
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZSTD:
		compressed = compressZSTD(data)
	case CompressionNone:
		// fall through with nil payload, stored verbatim below
	default:
		return nil, errors.New("blockio: unknown compression type")
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, headerSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[headerSize:], data)
		return out, nil
	}

	out := make([]byte, headerSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[headerSize:], compressed)
	return out, nil
}

// Decompress decodes one block produced by Compress.
func Decompress(block []byte, c Compression) ([]byte, error) {
	if len(block) < headerSize {
		return nil, ErrShortBlock
	}
	uncompressedSize := binary.LittleEndian.Uint32(block[0:])
	compressedSize := binary.LittleEndian.Uint32(block[4:])

	if compressedSize == 0 {
		if uint32(len(block)) < headerSize+uncompressedSize {
			return nil, ErrShortBlock
		}
		return block[headerSize : headerSize+uncompressedSize], nil
	}

	if uint32(len(block)) < headerSize+compressedSize {
		return nil, ErrShortBlock
	}
	payload := block[headerSize : headerSize+compressedSize]
	out := make([]byte, uncompressedSize)

	switch c {
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(payload, out[:0])
		if err != nil {
			return nil, err
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, ErrSizeMismatch
		}
		return decoded, nil
	default:
		// LZ4 also covers blocks written before the type marker existed.
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, ErrSizeMismatch
		}
		return out, nil
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	compressed := make([]byte, bound)
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return compressed[:n], nil
}

func compressZSTD(data []byte) []byte {
	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil)
}
