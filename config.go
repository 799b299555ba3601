package blkcheck

// DefaultDevicePath is the device the tools operate on when none is given.
const DefaultDevicePath = "/dev/nbd0"

// Config describes the device an operation runs against and how strictly it
// is accessed.
type Config struct {
	// DevicePath is the block device, image file or temp device name.
	DevicePath string
	// Driver selects the registered device driver ("raw", "mfile", "temp").
	Driver string
	// Alignment overrides the direct I/O alignment. Zero means discover it
	// from the device, falling back to DefaultAlignment.
	Alignment uint64
	// CompatZeroIO makes misaligned direct I/O return zero bytes and no
	// error instead of ErrAlignment.
	CompatZeroIO bool
	// StrictHeader makes sector checks reject bad magic and version values,
	// and records found at the wrong position, in addition to checksum
	// mismatches.
	StrictHeader bool
	// ImageSize is the size used when creating image or temp devices.
	ImageSize uint64
}
