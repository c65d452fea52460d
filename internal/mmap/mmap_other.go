//go:build !unix

package mmap

import (
	"io"
	"os"
)

// Fallback: read the whole file. Loses the zero-copy property but keeps
// the API portable.
func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, nil, err
	}
	return data, nil, nil
}
