package cluster

import (
	"bytes"
	"math/rand"
	"reflect"
	"testing"

	"github.com/coreos/blkcheck/sector"
)

const testDiskSize = 4 * Size

func filled(id uint64) *Cluster {
	c := New(Config{
		DiskSize: testDiskSize,
		ID:       id,
		Rand:     rand.New(rand.NewSource(int64(id) + 1)),
	})
	c.Fill()
	return c
}

func TestNewCluster(t *testing.T) {
	c := New(Config{})
	if len(c.Buf) != Size {
		t.Fatalf("expected a %d byte buffer, got %d", Size, len(c.Buf))
	}
	if Sectors != 2048 {
		t.Errorf("expected 2048 sectors per cluster, got %d", Sectors)
	}
	if !bytes.Equal(c.Buf, make([]byte, Size)) {
		t.Error("new cluster buffer is not zeroed")
	}
}

func TestFillThenCheck(t *testing.T) {
	c := filled(1)
	if bad := c.Check(); len(bad) != 0 {
		t.Errorf("freshly filled cluster reported bad sectors: %v", bad)
	}
}

func TestUnfilledCheck(t *testing.T) {
	c := New(Config{})
	if bad := c.Check(); len(bad) != Sectors {
		t.Errorf("expected every sector of a zeroed cluster to fail, got %d", len(bad))
	}
}

func TestPositionalBinding(t *testing.T) {
	c := filled(3)
	for _, i := range []uint64{0, 1, 1000, Sectors - 1} {
		rec := c.Record(i)
		if rec.ClusterID != 3 || rec.SectorID != i {
			t.Errorf("sector %d decoded as %d:%d", i, rec.ClusterID, rec.SectorID)
		}
		if rec.DiskSize != testDiskSize || rec.ClusterSize != Size || rec.SectorSize != sector.Size {
			t.Errorf("sector %d has wrong geometry: %s", i, rec)
		}
	}
}

func TestSingleByteCorruption(t *testing.T) {
	for _, i := range []uint64{0, 17, Sectors - 1} {
		for _, off := range []int{0, 20, 56, 200, sector.HeaderSize - 1} {
			c := filled(0)
			c.Buf[int(i)*sector.Size+off] ^= 0xff
			bad := c.Check()
			if !reflect.DeepEqual(bad, []uint64{i}) {
				t.Errorf("corrupting byte %d of sector %d: expected [%d], got %v", off, i, i, bad)
			}
		}
	}
}

func TestCheckOrdering(t *testing.T) {
	c := filled(0)
	for _, i := range []int{900, 3, 2047, 64} {
		c.Buf[i*sector.Size] ^= 1
	}
	expected := []uint64{3, 64, 900, 2047}
	if bad := c.Check(); !reflect.DeepEqual(bad, expected) {
		t.Errorf("expected %v, got %v", expected, bad)
	}
}

func TestInjectError(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		c := New(Config{DiskSize: testDiskSize, ID: 2, Rand: rand.New(rand.NewSource(seed))})
		c.Fill()
		orig := make([]byte, Size)
		copy(orig, c.Buf)

		f, ok := c.InjectError()
		if !ok {
			t.Fatal("InjectError reported failure")
		}
		if f.Start >= f.End || f.End > sector.Size {
			t.Fatalf("seed %d: bad fault range [%d, %d)", seed, f.Start, f.End)
		}
		for i := range c.Buf {
			changed := c.Buf[i] != orig[i]
			inside := i >= f.Offset() && i < f.Offset()+f.End-f.Start
			if changed != inside {
				t.Fatalf("seed %d: byte %d changed=%v inside fault=%v", seed, i, changed, inside)
			}
		}
		if bad := c.Check(); !reflect.DeepEqual(bad, []uint64{f.Sector}) {
			t.Errorf("seed %d: expected [%d] after injection, got %v", seed, f.Sector, bad)
		}
	}
}

func TestStrictCheck(t *testing.T) {
	c := filled(0)
	c.strict = true
	if bad := c.Check(); len(bad) != 0 {
		t.Fatalf("strict check rejected a filled cluster: %v", bad)
	}

	// A foreign sector that carries a valid checksum.
	rec := sector.New(sector.Config{DiskSize: testDiskSize, ClusterSize: Size, SectorID: 5})
	rec.Magic = 0x12345678
	rec.UpdateChecksum()
	rec.Serialize(c.Buf, 5*sector.Size)

	if bad := c.Check(); !reflect.DeepEqual(bad, []uint64{5}) {
		t.Errorf("strict check: expected [5], got %v", bad)
	}
	c.strict = false
	if bad := c.Check(); len(bad) != 0 {
		t.Errorf("tolerant check: expected no bad sectors, got %v", bad)
	}
}

func TestStrictCheckMisplaced(t *testing.T) {
	c := filled(0)
	c.strict = true

	// A valid record of another cluster, as left behind by a misdirected
	// write.
	other := filled(1)
	copy(c.Buf[9*sector.Size:10*sector.Size], other.Buf[9*sector.Size:10*sector.Size])
	// And a valid record of this cluster in the wrong slot.
	copy(c.Buf[11*sector.Size:12*sector.Size], c.Buf[12*sector.Size:13*sector.Size])

	if bad := c.Check(); !reflect.DeepEqual(bad, []uint64{9, 11}) {
		t.Errorf("strict check: expected [9 11], got %v", bad)
	}
	c.strict = false
	if bad := c.Check(); len(bad) != 0 {
		t.Errorf("tolerant check: expected no bad sectors, got %v", bad)
	}
}

func TestRefillReusesBuffer(t *testing.T) {
	c := filled(0)
	c.InjectError()
	c.SetID(1)
	c.Fill()
	if bad := c.Check(); len(bad) != 0 {
		t.Errorf("refilled cluster reported bad sectors: %v", bad)
	}
	if rec := c.Record(10); rec.ClusterID != 1 {
		t.Errorf("expected cluster id 1 after refill, got %d", rec.ClusterID)
	}
	if c.Offset() != Size {
		t.Errorf("expected offset %d, got %d", Size, c.Offset())
	}
}

func BenchmarkFill(b *testing.B) {
	c := New(Config{DiskSize: testDiskSize})
	b.SetBytes(Size)
	for i := 0; i < b.N; i++ {
		c.Fill()
	}
}

func BenchmarkCheck(b *testing.B) {
	c := filled(0)
	b.SetBytes(Size)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Check()
	}
}
