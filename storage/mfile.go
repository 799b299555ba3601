package storage

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/coreos/blkcheck"
)

func init() {
	blkcheck.RegisterDevice("mfile", openMFileDevice)
}

// MFile is an image file mapped into memory, standing in for a block device.
type MFile struct {
	mmap      mmap.MMap
	path      string
	alignment uint64
	compat    bool
	size      uint64
}

// CreateImage creates a sparse image file of size bytes for the mfile
// driver. The size must be a multiple of the default alignment.
func CreateImage(path string, size uint64) error {
	if size == 0 || size%blkcheck.DefaultAlignment != 0 {
		return fmt.Errorf("image size %d is not a positive multiple of %d", size, blkcheck.DefaultAlignment)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(int64(size))
}

func openMFileDevice(cfg blkcheck.Config) (blkcheck.Device, error) {
	return OpenMFile(cfg)
}

// OpenMFile maps the image at cfg.DevicePath. If the file does not exist and
// cfg.ImageSize is set, the image is created first.
func OpenMFile(cfg blkcheck.Config) (*MFile, error) {
	if _, err := os.Stat(cfg.DevicePath); os.IsNotExist(err) && cfg.ImageSize != 0 {
		clog.Infof("creating %d byte image %s", cfg.ImageSize, cfg.DevicePath)
		if err := CreateImage(cfg.DevicePath, cfg.ImageSize); err != nil {
			return nil, err
		}
	}

	alignment, err := resolveAlignment(cfg.Alignment, 0)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(cfg.DevicePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", blkcheck.ErrNotABlockDevice, err)
	}
	// We don't need the file handle after we mmap it.
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not an image file", blkcheck.ErrNotABlockDevice, cfg.DevicePath)
	}
	m := &MFile{
		path:      cfg.DevicePath,
		alignment: alignment,
		compat:    cfg.CompatZeroIO,
		size:      uint64(st.Size()),
	}
	if m.size == 0 || m.size%alignment != 0 {
		return nil, fmt.Errorf("%w: image size %d is not a multiple of the alignment %d", blkcheck.ErrSizeDiscovery, m.size, alignment)
	}
	m.mmap, err = mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return nil, err
	}
	promDeviceBytes.WithLabelValues("mfile").Set(float64(m.size))
	return m, nil
}

func (m *MFile) Path() string      { return m.path }
func (m *MFile) Size() uint64      { return m.size }
func (m *MFile) Alignment() uint64 { return m.alignment }

func (m *MFile) ReadAt(p []byte, off int64) (int, error) {
	if m.mmap == nil {
		return 0, blkcheck.ErrClosed
	}
	if off < 0 {
		return 0, errors.New("mfile: negative offset")
	}
	if uint64(off) >= m.size {
		return 0, io.EOF
	}
	n := copy(p, m.mmap[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MFile) ReadAlignedAt(buf []byte, off uint64) (int, error) {
	if m.mmap == nil {
		return 0, blkcheck.ErrClosed
	}
	ok, err := checkRequest("mfile", m, m.compat, len(buf), off)
	if !ok {
		if err != nil {
			promReadsFailed.WithLabelValues("mfile").Inc()
		}
		return 0, err
	}
	n := copy(buf, m.mmap[off:off+uint64(len(buf))])
	promBytesRead.WithLabelValues("mfile").Add(float64(n))
	return n, nil
}

func (m *MFile) WriteAlignedAt(buf []byte, off uint64) (int, error) {
	if m.mmap == nil {
		return 0, blkcheck.ErrClosed
	}
	ok, err := checkRequest("mfile", m, m.compat, len(buf), off)
	if !ok {
		if err != nil {
			promWritesFailed.WithLabelValues("mfile").Inc()
		}
		return 0, err
	}
	n := copy(m.mmap[off:off+uint64(len(buf))], buf)
	promBytesWritten.WithLabelValues("mfile").Add(float64(n))
	return n, nil
}

func (m *MFile) Flush() error {
	if m.mmap == nil {
		return blkcheck.ErrClosed
	}
	return m.mmap.Flush()
}

func (m *MFile) Close() error {
	if m.mmap == nil {
		return nil
	}
	if err := m.mmap.Flush(); err != nil {
		return err
	}
	err := m.mmap.Unmap()
	m.mmap = nil
	return err
}
