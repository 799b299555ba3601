package flagconfig

import (
	"errors"
	"testing"

	flag "github.com/spf13/pflag"

	"github.com/coreos/blkcheck"
	_ "github.com/coreos/blkcheck/storage"
)

func parse(t *testing.T, args ...string) (blkcheck.Config, error) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	AddConfigFlags(set)
	if err := set.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return BuildConfigFromFlags()
}

func TestBuildConfigFromFlags(t *testing.T) {
	tests := []struct {
		args []string
		want blkcheck.Config
		err  error
	}{
		{
			args: nil,
			want: blkcheck.Config{DevicePath: blkcheck.DefaultDevicePath, Driver: blkcheck.DefaultDriver},
		},
		{
			args: []string{"-d", "/tmp/disk.img", "--driver", "mfile", "--alignment", "4KiB", "--image-size", "64MiB"},
			want: blkcheck.Config{DevicePath: "/tmp/disk.img", Driver: "mfile", Alignment: 4096, ImageSize: 64 << 20},
		},
		{
			args: []string{"--device=/dev/nbd3", "--alignment=512", "--compat-zero-io", "--strict"},
			want: blkcheck.Config{DevicePath: "/dev/nbd3", Driver: blkcheck.DefaultDriver, Alignment: 512, CompatZeroIO: true, StrictHeader: true},
		},
		{args: []string{"--device="}, err: blkcheck.ErrUsage},
		{args: []string{"--driver", "floppy"}, err: blkcheck.ErrUnknownDriver},
		{args: []string{"--driver", "temp"}, err: blkcheck.ErrUnknownDriver},
		{args: []string{"--alignment", "lots"}, err: blkcheck.ErrUsage},
		{args: []string{"--alignment", "256"}, err: blkcheck.ErrUsage},
		{args: []string{"--alignment", "3000"}, err: blkcheck.ErrUsage},
		{args: []string{"--image-size", "big"}, err: blkcheck.ErrUsage},
	}
	for i, tt := range tests {
		cfg, err := parse(t, tt.args...)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Errorf("%d: %v: got error %v, want %v", i, tt.args, err, tt.err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%d: %v: unexpected error: %v", i, tt.args, err)
			continue
		}
		if cfg != tt.want {
			t.Errorf("%d: %v: got %+v, want %+v", i, tt.args, cfg, tt.want)
		}
	}
}

func TestDriversHideProcessLocal(t *testing.T) {
	for _, d := range Drivers() {
		if d == "temp" {
			t.Fatalf("Drivers() offers %q: %v", d, Drivers())
		}
	}
	found := false
	for _, d := range blkcheck.Drivers() {
		found = found || d == "temp"
	}
	if !found {
		t.Fatal("temp driver not registered")
	}
}
