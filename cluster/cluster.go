// cluster aggregates the sector records of one 1MiB region of a device.
package cluster

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/blkcheck/sector"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/blkcheck", "cluster")

const (
	Size    = 2 * 1024 * sector.Size // 1MiB
	Sectors = Size / sector.Size
)

// Config describes the cluster a buffer currently holds.
type Config struct {
	DiskSize uint64
	ID       uint64
	// Strict makes Check also reject sectors with a foreign magic or version
	// and valid records that belong to a different position.
	Strict bool
	// Rand drives fault injection. A time-seeded source is used when nil.
	Rand *rand.Rand
}

// Cluster is an in-memory copy of one cluster of a device. Sector i lives at
// Buf[i*sector.Size : (i+1)*sector.Size].
type Cluster struct {
	Buf []byte

	diskSize uint64
	id       uint64
	strict   bool
	rng      *rand.Rand
}

// Fault describes one injected corruption: bytes [Start, End) of Sector
// were overwritten.
type Fault struct {
	Sector uint64
	Start  int
	End    int
}

// Offset returns the offset of the first corrupted byte inside the cluster.
func (f Fault) Offset() int {
	return int(f.Sector)*sector.Size + f.Start
}

func New(cfg Config) *Cluster {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Cluster{
		Buf:      make([]byte, Size),
		diskSize: cfg.DiskSize,
		id:       cfg.ID,
		strict:   cfg.Strict,
		rng:      rng,
	}
}

func (c *Cluster) ID() uint64 { return c.id }

func (c *Cluster) SetID(id uint64) { c.id = id }

func (c *Cluster) DiskSize() uint64 { return c.diskSize }

// Offset returns the byte offset of the cluster on its device.
func (c *Cluster) Offset() uint64 { return c.id * Size }

// Fill writes a fresh record into every sector, each bound to this cluster
// and to its own sector index.
func (c *Cluster) Fill() {
	rec := sector.New(sector.Config{
		DiskSize:    c.diskSize,
		ClusterSize: Size,
		ClusterID:   c.id,
	})
	for i := 0; i < Sectors; i++ {
		rec.SectorID = uint64(i)
		rec.UpdateChecksum()
		rec.Serialize(c.Buf, i*sector.Size)
	}
	clog.Tracef("filled cluster %d", c.id)
}

// Check verifies every sector and returns the indices of the ones that fail,
// in ascending order. An empty result means the cluster is intact.
func (c *Cluster) Check() []uint64 {
	var bad []uint64
	var rec sector.Record
	for i := 0; i < Sectors; i++ {
		pos := i * sector.Size
		if c.strict {
			err := rec.Validate(c.Buf, pos)
			if err == nil && (rec.ClusterID != c.id || rec.SectorID != uint64(i)) {
				err = fmt.Errorf("misplaced record for sector %d:%d", rec.ClusterID, rec.SectorID)
			}
			if err != nil {
				clog.Tracef("cluster %d sector %d: %v", c.id, i, err)
				bad = append(bad, uint64(i))
			}
			continue
		}
		if !rec.Verify(c.Buf, pos) {
			bad = append(bad, uint64(i))
		}
	}
	return bad
}

// Record decodes sector i of the buffer without verifying it.
func (c *Cluster) Record(i uint64) *sector.Record {
	rec := &sector.Record{}
	rec.Deserialize(c.Buf, int(i)*sector.Size)
	return rec
}

// InjectError overwrites a random, non-empty byte range of a random sector
// with random values. Every byte in the range is changed. It always succeeds.
func (c *Cluster) InjectError() (Fault, bool) {
	f := Fault{Sector: uint64(c.rng.Intn(Sectors))}

	a := c.rng.Intn(sector.Size)
	b := c.rng.Intn(sector.Size + 1)
	if a == b {
		b = a + 1
	}
	if a > b {
		a, b = b, a
	}
	f.Start, f.End = a, b

	base := int(f.Sector) * sector.Size
	for i := base + f.Start; i < base+f.End; i++ {
		c.Buf[i] ^= byte(1 + c.rng.Intn(255))
	}
	clog.Debugf("cluster %d: corrupted sector %d bytes [%d, %d)", c.id, f.Sector, f.Start, f.End)
	return f, true
}
