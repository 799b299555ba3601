// flagconfig is a generic set of flags dedicated to configuring access to a
// device under test.
package flagconfig

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/coreos/blkcheck"
)

// processLocal names drivers whose devices do not outlive the process, so a
// fill in one invocation would never be seen by a check in the next.
var processLocal = map[string]bool{"temp": true}

var (
	devicePath   string
	driver       string
	alignmentStr string
	imageSizeStr string
	compatZeroIO bool
	strictHeader bool
)

// Drivers returns the drivers selectable from the command line.
func Drivers() []string {
	var out []string
	for _, d := range blkcheck.Drivers() {
		if !processLocal[d] {
			out = append(out, d)
		}
	}
	return out
}

func AddConfigFlags(set *flag.FlagSet) {
	set.StringVarP(&devicePath, "device", "d", blkcheck.DefaultDevicePath, "Device (or image, for the mfile driver) to operate on")
	set.StringVarP(&driver, "driver", "", blkcheck.DefaultDriver, "Device driver to use; one of "+strings.Join(Drivers(), ", "))
	set.StringVarP(&alignmentStr, "alignment", "", "", "Direct I/O alignment, e.g. 512 or 4KiB (default: discovered, else 4KiB)")
	set.StringVarP(&imageSizeStr, "image-size", "", "", "Size of the image to create when it does not exist (mfile driver)")
	set.BoolVarP(&compatZeroIO, "compat-zero-io", "", false, "Treat misaligned I/O as a zero-byte success instead of an error")
	set.BoolVarP(&strictHeader, "strict", "", false, "Also reject sectors with a foreign magic, version or position")
}

// BuildConfigFromFlags validates the flags added by AddConfigFlags and
// returns the configuration they describe.
func BuildConfigFromFlags() (blkcheck.Config, error) {
	cfg := blkcheck.Config{
		DevicePath:   devicePath,
		Driver:       driver,
		CompatZeroIO: compatZeroIO,
		StrictHeader: strictHeader,
	}
	if cfg.DevicePath == "" {
		return cfg, fmt.Errorf("%w: no device given", blkcheck.ErrUsage)
	}
	drivers := Drivers()
	if i := sort.SearchStrings(drivers, driver); i == len(drivers) || drivers[i] != driver {
		return cfg, fmt.Errorf("%w: %q; use one of %s", blkcheck.ErrUnknownDriver, driver, strings.Join(drivers, ", "))
	}

	var err error
	if alignmentStr != "" {
		cfg.Alignment, err = humanize.ParseBytes(alignmentStr)
		if err != nil {
			return cfg, fmt.Errorf("%w: error parsing alignment: %v", blkcheck.ErrUsage, err)
		}
		if cfg.Alignment < 512 || cfg.Alignment&(cfg.Alignment-1) != 0 {
			return cfg, fmt.Errorf("%w: alignment %d is not a power of two of at least 512", blkcheck.ErrUsage, cfg.Alignment)
		}
	}
	if imageSizeStr != "" {
		cfg.ImageSize, err = humanize.ParseBytes(imageSizeStr)
		if err != nil {
			return cfg, fmt.Errorf("%w: error parsing image-size: %v", blkcheck.ErrUsage, err)
		}
	}
	return cfg, nil
}
