package storage

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/coreos/blkcheck"
)

func TestTempDeviceLifecycle(t *testing.T) {
	const name = "temp-lifecycle"
	if err := CreateTempDevice(name, 1<<20); err != nil {
		t.Fatal(err)
	}
	defer DestroyTempDevice(name)
	if err := CreateTempDevice(name, 1<<20); err == nil {
		t.Error("expected an error creating a temp device twice")
	}

	cfg := blkcheck.Config{DevicePath: name, Driver: "temp"}
	dev, err := blkcheck.OpenDevice(cfg)
	if err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte{0x42}, 8192)
	if _, err := dev.WriteAlignedAt(data, 4096); err != nil {
		t.Fatal(err)
	}
	dev.Close()
	if _, err := dev.WriteAlignedAt(data, 4096); err != blkcheck.ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// The contents outlive the handle.
	dev, err = blkcheck.OpenDevice(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	got := make([]byte, 8192)
	if _, err := dev.ReadAlignedAt(got, 4096); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("temp device lost its contents across opens")
	}

	DestroyTempDevice(name)
	if _, err := blkcheck.OpenDevice(cfg); !errors.Is(err, blkcheck.ErrNotABlockDevice) {
		t.Errorf("expected ErrNotABlockDevice after destroy, got %v", err)
	}
}

func TestTempDeviceAlignment(t *testing.T) {
	const name = "temp-alignment"
	cfg := blkcheck.Config{DevicePath: name, Driver: "temp", ImageSize: 1 << 20, Alignment: 512}
	dev, err := blkcheck.OpenDevice(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer DestroyTempDevice(name)
	defer dev.Close()

	if _, err := dev.ReadAlignedAt(make([]byte, 1024), 512); err != nil {
		t.Errorf("512 byte aligned read failed: %v", err)
	}

	before := testutil.ToFloat64(promUnaligned.WithLabelValues("temp"))
	if _, err := dev.ReadAlignedAt(make([]byte, 1000), 0); !errors.Is(err, blkcheck.ErrAlignment) {
		t.Errorf("expected ErrAlignment, got %v", err)
	}
	if after := testutil.ToFloat64(promUnaligned.WithLabelValues("temp")); after != before+1 {
		t.Errorf("expected the unaligned counter to go from %v to %v, got %v", before, before+1, after)
	}

	compat, err := blkcheck.OpenDevice(blkcheck.Config{DevicePath: name, Driver: "temp", Alignment: 512, CompatZeroIO: true})
	if err != nil {
		t.Fatal(err)
	}
	defer compat.Close()
	buf := bytes.Repeat([]byte{1}, 1000)
	if n, err := compat.WriteAlignedAt(buf, 0); n != 0 || err != nil {
		t.Errorf("compat write: expected 0, nil, got %d, %v", n, err)
	}
	got := make([]byte, 1024)
	if _, err := compat.ReadAlignedAt(got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, make([]byte, 1024)) {
		t.Error("a rejected compat write modified the device")
	}
}

func TestUnknownDriver(t *testing.T) {
	_, err := blkcheck.OpenDevice(blkcheck.Config{DevicePath: "x", Driver: "nope"})
	if !errors.Is(err, blkcheck.ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}
