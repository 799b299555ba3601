package block_device

import (
	"os"
	"path/filepath"
	"testing"
)

func withSysfs(t *testing.T, name, content string) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, name), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name, "size"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	old := SysfsBlockPath
	SysfsBlockPath = dir
	t.Cleanup(func() { SysfsBlockPath = old })
}

func TestSysfsSize(t *testing.T) {
	withSysfs(t, "nbd0", "8192\n")
	size, err := SysfsSize("nbd0")
	if err != nil {
		t.Fatal(err)
	}
	if size != 8192*512 {
		t.Errorf("expected %d bytes, got %d", 8192*512, size)
	}
}

func TestSysfsSizeErrors(t *testing.T) {
	withSysfs(t, "nbd0", "lots\n")
	if _, err := SysfsSize("nbd0"); err == nil {
		t.Error("expected an error for an unparsable size")
	}
	if _, err := SysfsSize("nbd1"); err == nil {
		t.Error("expected an error for a missing device")
	}
}

func TestIsBlockDevice(t *testing.T) {
	tests := []struct {
		mode os.FileMode
		want bool
	}{
		{os.ModeDevice, true},
		{os.ModeDevice | os.ModeCharDevice, false},
		{0, false},
		{os.ModeDir, false},
	}
	for _, tt := range tests {
		if got := IsBlockDevice(tt.mode); got != tt.want {
			t.Errorf("IsBlockDevice(%v) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestDeviceName(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nbd3")
	if err := os.WriteFile(target, nil, 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "by-id")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	name, err := DeviceName(link)
	if err != nil {
		t.Fatal(err)
	}
	if name != "nbd3" {
		t.Errorf("expected nbd3, got %s", name)
	}
}
