//go:build linux

package storage

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/coreos/blkcheck"
	blockDevice "github.com/coreos/blkcheck/storage/block_device"
)

func init() {
	blkcheck.RegisterDevice("raw", openRawDevice)
}

// rawDevice is a block-special device accessed with O_DIRECT. It holds no
// open handle; every call opens the device for the duration of the I/O.
type rawDevice struct {
	path      string
	size      uint64
	alignment uint64
	compat    bool
}

func openRawDevice(cfg blkcheck.Config) (blkcheck.Device, error) {
	return newRawDevice(cfg)
}

func newRawDevice(cfg blkcheck.Config) (*rawDevice, error) {
	path := cfg.DevicePath
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", blkcheck.ErrNotABlockDevice, err)
	}
	if !blockDevice.IsBlockDevice(fi.Mode()) {
		return nil, fmt.Errorf("%w: %s has mode %v", blkcheck.ErrNotABlockDevice, path, fi.Mode())
	}

	size, err := discoverSize(path)
	if err != nil {
		return nil, err
	}

	alignment, err := resolveAlignment(cfg.Alignment, discoverAlignment(path))
	if err != nil {
		return nil, err
	}

	d := &rawDevice{
		path:      path,
		size:      size,
		alignment: alignment,
		compat:    cfg.CompatZeroIO,
	}
	promDeviceBytes.WithLabelValues("raw").Set(float64(size))
	clog.Infof("opened %s: %d bytes, alignment %d", path, size, alignment)
	return d, nil
}

// discoverSize reads the device size from sysfs, falling back to the
// BLKGETSIZE64 ioctl for devices sysfs does not know by their node name.
func discoverSize(path string) (uint64, error) {
	name, err := blockDevice.DeviceName(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", blkcheck.ErrSizeDiscovery, err)
	}
	size, err := blockDevice.SysfsSize(name)
	if err == nil {
		return size, nil
	}
	clog.Debugf("sysfs size for %s unavailable (%v), asking the device", name, err)

	f, ferr := os.Open(path)
	if ferr != nil {
		return 0, fmt.Errorf("%w: %s: %v", blkcheck.ErrSizeDiscovery, path, ferr)
	}
	defer f.Close()
	size, ferr = blockDevice.GetDeviceSize(f)
	if ferr != nil {
		return 0, fmt.Errorf("%w: %s: %v", blkcheck.ErrSizeDiscovery, path, ferr)
	}
	return size, nil
}

func discoverAlignment(path string) uint64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	pbs, err := blockDevice.GetPhysicalBlockSize(f)
	if err != nil {
		clog.Debugf("couldn't get physical block size of %s: %v", path, err)
		return 0
	}
	return pbs
}

func (d *rawDevice) Path() string      { return d.path }
func (d *rawDevice) Size() uint64      { return d.size }
func (d *rawDevice) Alignment() uint64 { return d.alignment }
func (d *rawDevice) Close() error      { return nil }

func (d *rawDevice) ReadAt(p []byte, off int64) (int, error) {
	f, err := os.OpenFile(d.path, os.O_RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", blkcheck.ErrIO, err)
	}
	defer f.Close()
	n, err := f.ReadAt(p, off)
	if err == io.EOF {
		return n, err
	}
	if err != nil {
		return n, fmt.Errorf("%w: %v", blkcheck.ErrIO, err)
	}
	return n, nil
}

func (d *rawDevice) ReadAlignedAt(buf []byte, off uint64) (int, error) {
	ok, err := checkRequest("raw", d, d.compat, len(buf), off)
	if !ok {
		if err != nil {
			promReadsFailed.WithLabelValues("raw").Inc()
		}
		return 0, err
	}

	f, err := os.OpenFile(d.path, os.O_RDONLY|unix.O_DIRECT, 0)
	if err != nil {
		promReadsFailed.WithLabelValues("raw").Inc()
		return 0, fmt.Errorf("%w: open %s: %v", blkcheck.ErrIO, d.path, err)
	}
	defer f.Close()

	chunk := blkcheck.ChunkSize(d.alignment)
	scratch, err := alignedBuffer(chunk)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", blkcheck.ErrIO, err)
	}
	defer scratch.Unmap()

	total := 0
	err = chunks(uint64(len(buf)), chunk, func(start, n uint64) error {
		read, err := f.ReadAt(scratch[:n], int64(off+start))
		if err != nil || uint64(read) != n {
			return fmt.Errorf("%w: read %d bytes at %d of %s, got %d: %v", blkcheck.ErrIO, n, off+start, d.path, read, err)
		}
		copy(buf[start:start+n], scratch[:n])
		total += read
		return nil
	})
	if err != nil {
		promReadsFailed.WithLabelValues("raw").Inc()
		return total, err
	}
	promBytesRead.WithLabelValues("raw").Add(float64(total))
	return total, nil
}

func (d *rawDevice) WriteAlignedAt(buf []byte, off uint64) (int, error) {
	ok, err := checkRequest("raw", d, d.compat, len(buf), off)
	if !ok {
		if err != nil {
			promWritesFailed.WithLabelValues("raw").Inc()
		}
		return 0, err
	}

	f, err := os.OpenFile(d.path, os.O_WRONLY|unix.O_DIRECT, 0)
	if err != nil {
		promWritesFailed.WithLabelValues("raw").Inc()
		return 0, fmt.Errorf("%w: open %s: %v", blkcheck.ErrIO, d.path, err)
	}
	defer f.Close()

	chunk := blkcheck.ChunkSize(d.alignment)
	scratch, err := alignedBuffer(chunk)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", blkcheck.ErrIO, err)
	}
	defer scratch.Unmap()

	total := 0
	err = chunks(uint64(len(buf)), chunk, func(start, n uint64) error {
		copy(scratch[:n], buf[start:start+n])
		written, err := f.WriteAt(scratch[:n], int64(off+start))
		if err != nil {
			return fmt.Errorf("%w: write %d bytes at %d of %s: %v", blkcheck.ErrIO, n, off+start, d.path, err)
		}
		total += written
		return nil
	})
	if err != nil {
		promWritesFailed.WithLabelValues("raw").Inc()
		return total, err
	}
	promBytesWritten.WithLabelValues("raw").Add(float64(total))
	return total, nil
}
