package block_device

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IsBlockDevice reports whether mode describes a block-special file.
func IsBlockDevice(mode os.FileMode) bool {
	return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0
}

// DeviceName returns the kernel name of the device at path, following
// symlinks such as /dev/disk/by-id entries.
func DeviceName(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Base(resolved), nil
}

// SysfsSize reads the size of the named device from sysfs. The kernel
// reports it in 512 byte units regardless of the device's block size.
func SysfsSize(name string) (uint64, error) {
	data, err := os.ReadFile(filepath.Join(SysfsBlockPath, name, "size"))
	if err != nil {
		return 0, err
	}
	units, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad sysfs size for %s: %v", name, err)
	}
	return units * SectorUnit, nil
}
