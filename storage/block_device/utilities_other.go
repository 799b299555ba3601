//go:build !linux

package block_device

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("block device ioctls are only supported on linux")

func GetDeviceSize(deviceFile *os.File) (uint64, error) {
	return 0, errUnsupported
}

func GetPhysicalBlockSize(deviceFile *os.File) (uint64, error) {
	return 0, errUnsupported
}
