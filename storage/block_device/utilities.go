//go:build linux

package block_device

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// GetDeviceSize asks the kernel for the size in bytes of an open block
// device.
func GetDeviceSize(deviceFile *os.File) (uint64, error) {
	var numBytes uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, deviceFile.Fd(), uintptr(unix.BLKGETSIZE64), uintptr(unsafe.Pointer(&numBytes)))
	if errno != 0 {
		return 0, errno
	}
	return numBytes, nil
}

// GetPhysicalBlockSize returns the physical block size the kernel reports for
// an open block device.
func GetPhysicalBlockSize(deviceFile *os.File) (uint64, error) {
	n, err := unix.IoctlGetInt(int(deviceFile.Fd()), unix.BLKPBSZGET)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}
