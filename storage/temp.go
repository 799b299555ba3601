package storage

import (
	"fmt"
	"io"
	"sync"

	"github.com/coreos/blkcheck"
)

func init() {
	blkcheck.RegisterDevice("temp", openTempDevice)
}

var (
	tempMut     sync.Mutex
	tempDevices = make(map[string][]byte)
)

// CreateTempDevice creates a named in-memory device of size bytes. Its
// contents survive Close until DestroyTempDevice is called, so a device can
// be filled by one operation and checked by the next.
func CreateTempDevice(name string, size uint64) error {
	if size == 0 || size%blkcheck.DefaultAlignment != 0 {
		return fmt.Errorf("temp device size %d is not a positive multiple of %d", size, blkcheck.DefaultAlignment)
	}
	tempMut.Lock()
	defer tempMut.Unlock()
	if _, ok := tempDevices[name]; ok {
		return fmt.Errorf("temp device %q already exists", name)
	}
	tempDevices[name] = make([]byte, size)
	return nil
}

// DestroyTempDevice drops a named in-memory device.
func DestroyTempDevice(name string) {
	tempMut.Lock()
	defer tempMut.Unlock()
	delete(tempDevices, name)
}

type tempDevice struct {
	mut       sync.RWMutex
	name      string
	data      []byte
	alignment uint64
	compat    bool
}

func openTempDevice(cfg blkcheck.Config) (blkcheck.Device, error) {
	tempMut.Lock()
	data, ok := tempDevices[cfg.DevicePath]
	tempMut.Unlock()
	if !ok {
		if cfg.ImageSize == 0 {
			return nil, fmt.Errorf("%w: no temp device %q", blkcheck.ErrNotABlockDevice, cfg.DevicePath)
		}
		if err := CreateTempDevice(cfg.DevicePath, cfg.ImageSize); err != nil {
			return nil, err
		}
		return openTempDevice(cfg)
	}

	alignment, err := resolveAlignment(cfg.Alignment, 0)
	if err != nil {
		return nil, err
	}
	if uint64(len(data))%alignment != 0 {
		return nil, fmt.Errorf("%w: temp device size %d is not a multiple of the alignment %d", blkcheck.ErrSizeDiscovery, len(data), alignment)
	}
	promDeviceBytes.WithLabelValues("temp").Set(float64(len(data)))
	return &tempDevice{
		name:      cfg.DevicePath,
		data:      data,
		alignment: alignment,
		compat:    cfg.CompatZeroIO,
	}, nil
}

func (t *tempDevice) Path() string      { return t.name }
func (t *tempDevice) Alignment() uint64 { return t.alignment }

func (t *tempDevice) Size() uint64 {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return uint64(len(t.data))
}

func (t *tempDevice) Close() error {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.data = nil
	return nil
}

func (t *tempDevice) ReadAt(p []byte, off int64) (int, error) {
	t.mut.RLock()
	defer t.mut.RUnlock()
	if t.data == nil {
		return 0, blkcheck.ErrClosed
	}
	if off < 0 || off >= int64(len(t.data)) {
		return 0, io.EOF
	}
	n := copy(p, t.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (t *tempDevice) ReadAlignedAt(buf []byte, off uint64) (int, error) {
	if t.closed() {
		promReadsFailed.WithLabelValues("temp").Inc()
		return 0, blkcheck.ErrClosed
	}
	ok, err := checkRequest("temp", t, t.compat, len(buf), off)
	if !ok {
		if err != nil {
			promReadsFailed.WithLabelValues("temp").Inc()
		}
		return 0, err
	}
	t.mut.RLock()
	defer t.mut.RUnlock()
	n := copy(buf, t.data[off:off+uint64(len(buf))])
	promBytesRead.WithLabelValues("temp").Add(float64(n))
	return n, nil
}

func (t *tempDevice) WriteAlignedAt(buf []byte, off uint64) (int, error) {
	if t.closed() {
		promWritesFailed.WithLabelValues("temp").Inc()
		return 0, blkcheck.ErrClosed
	}
	ok, err := checkRequest("temp", t, t.compat, len(buf), off)
	if !ok {
		if err != nil {
			promWritesFailed.WithLabelValues("temp").Inc()
		}
		return 0, err
	}
	t.mut.Lock()
	defer t.mut.Unlock()
	n := copy(t.data[off:off+uint64(len(buf))], buf)
	promBytesWritten.WithLabelValues("temp").Add(float64(n))
	return n, nil
}

func (t *tempDevice) closed() bool {
	t.mut.RLock()
	defer t.mut.RUnlock()
	return t.data == nil
}
