package blkcheck

import (
	"fmt"
	"sort"

	"github.com/coreos/pkg/capnslog"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/blkcheck", "blkcheck")

const (
	// DefaultAlignment is the direct I/O alignment used when a device does
	// not report one. It matches common physical and logical block sizes but
	// is not correct for every device.
	DefaultAlignment uint64 = 4096

	// DefaultDriver is the driver used when a Config leaves Driver empty.
	DefaultDriver = "raw"
)

// Device is the interface every device driver provides. Offsets and lengths
// are in bytes.
type Device interface {
	// Path returns the path or name the device was opened with.
	Path() string
	// Size returns the usable size of the device. It performs no I/O.
	Size() uint64
	// Alignment returns the unit that aligned I/O lengths and offsets must
	// be multiples of.
	Alignment() uint64

	// ReadAt is a buffered read for ad-hoc inspection. It has no alignment
	// constraint and is not part of the integrity path.
	ReadAt(p []byte, off int64) (int, error)
	// ReadAlignedAt reads len(buf) bytes at off bypassing the page cache.
	ReadAlignedAt(buf []byte, off uint64) (int, error)
	// WriteAlignedAt writes buf at off bypassing the page cache.
	WriteAlignedAt(buf []byte, off uint64) (int, error)

	Close() error
}

// NewDeviceFunc opens a device for the given configuration.
type NewDeviceFunc func(cfg Config) (Device, error)

var devices map[string]NewDeviceFunc

// RegisterDevice makes a device driver available under name. It panics if the
// name is registered twice.
func RegisterDevice(name string, newFunc NewDeviceFunc) {
	if devices == nil {
		devices = make(map[string]NewDeviceFunc)
	}

	if _, ok := devices[name]; ok {
		panic("blkcheck: attempted to register device driver " + name + " twice")
	}

	devices[name] = newFunc
}

// OpenDevice opens cfg.DevicePath with the driver named by cfg.Driver.
func OpenDevice(cfg Config) (Device, error) {
	name := cfg.Driver
	if name == "" {
		name = DefaultDriver
	}
	newFunc, ok := devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	clog.Debugf("opening %s device %s", name, cfg.DevicePath)
	return newFunc(cfg)
}

// Drivers returns the names of the registered device drivers, sorted.
func Drivers() []string {
	out := make([]string, 0, len(devices))
	for k := range devices {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CheckAlignment reports whether an aligned I/O of length bytes at off is
// allowed for the given alignment. A violation is ErrAlignment, or no error
// and ok == false in compatibility mode, in which case the caller must return
// zero bytes transferred without doing any I/O.
func CheckAlignment(length int, off, alignment uint64, compat bool) (ok bool, err error) {
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	if uint64(length)%alignment == 0 && off%alignment == 0 {
		return true, nil
	}
	if compat {
		clog.Debugf("ignoring unaligned I/O of %d bytes at %d (alignment %d)", length, off, alignment)
		return false, nil
	}
	return false, fmt.Errorf("%w: %d bytes at offset %d, alignment %d", ErrAlignment, length, off, alignment)
}

// ChunkSize returns the staging chunk size used for aligned I/O: the
// alignment itself, but never less than DefaultAlignment.
func ChunkSize(alignment uint64) uint64 {
	if alignment < DefaultAlignment {
		return DefaultAlignment
	}
	return alignment
}
