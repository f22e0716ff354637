//go:build windows

package mmap

import (
	"io"
	"os"
)

// Windows fallback: read the whole file into memory. Shard metadata
// files are small; bulk payload access goes through ReadAt either way.
func mapFile(f *os.File, size int) ([]byte, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, err
	}
	return data, nil
}

func unmapFile(data []byte) error {
	return nil
}
