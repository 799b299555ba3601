package storage

import (
	"github.com/edsrzf/mmap-go"
)

// alignedBuffer returns a page aligned scratch buffer of size bytes. Direct
// I/O requires the memory buffer to be aligned as well as the offset and the
// length, and an anonymous mapping always starts on a page boundary.
func alignedBuffer(size uint64) (mmap.MMap, error) {
	return mmap.MapRegion(nil, int(size), mmap.RDWR, mmap.ANON, 0)
}

// chunks calls fn for every chunk of at most chunk bytes covering
// [0, length). Each call gets the chunk's start and length.
func chunks(length, chunk uint64, fn func(start, n uint64) error) error {
	for start := uint64(0); start < length; start += chunk {
		n := chunk
		if length-start < n {
			n = length - start
		}
		if err := fn(start, n); err != nil {
			return err
		}
	}
	return nil
}
