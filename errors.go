package blkcheck

import "errors"

var (
	// ErrNotABlockDevice is returned when a device path does not exist or is
	// not block-special.
	ErrNotABlockDevice = errors.New("blkcheck: not a block device")

	// ErrSizeDiscovery is returned when the size reported by the kernel for a
	// device cannot be read or parsed.
	ErrSizeDiscovery = errors.New("blkcheck: cannot discover device size")

	// ErrAlignment is returned by the aligned I/O calls when the buffer length
	// or the offset is not a multiple of the device alignment. No I/O is
	// performed.
	ErrAlignment = errors.New("blkcheck: unaligned direct I/O")

	// ErrIO wraps failures of the underlying read or write calls.
	ErrIO = errors.New("blkcheck: device I/O failed")

	// ErrOutOfBounds is returned by the aligned I/O calls when a request
	// extends past the end of the device. No I/O is performed.
	ErrOutOfBounds = errors.New("blkcheck: I/O past the end of the device")

	// ErrChecksumMismatch is returned by strict sector validation when the
	// stored checksum does not match the header. Scans report it as data.
	ErrChecksumMismatch = errors.New("blkcheck: sector checksum mismatch")

	// ErrBadMagic is returned by strict sector validation for foreign sectors.
	ErrBadMagic = errors.New("blkcheck: bad sector magic")

	// ErrBadVersion is returned by strict sector validation for an unknown
	// layout version.
	ErrBadVersion = errors.New("blkcheck: unsupported sector version")

	// ErrClusterOutOfRange is returned when a cluster id is not smaller than
	// the number of whole clusters on the device.
	ErrClusterOutOfRange = errors.New("blkcheck: cluster out of range")

	// ErrSectorOutOfRange is returned when a sector id is not smaller than the
	// number of sectors in a cluster.
	ErrSectorOutOfRange = errors.New("blkcheck: sector out of range")

	// ErrUnknownDriver is returned when no device driver is registered under
	// the requested name.
	ErrUnknownDriver = errors.New("blkcheck: unknown device driver")

	// ErrClosed is returned when a function attempts to use a device that is
	// no longer available.
	ErrClosed = errors.New("blkcheck: device is closed")

	// ErrUsage is returned when a command is invoked with bad arguments.
	ErrUsage = errors.New("blkcheck: usage error")
)
