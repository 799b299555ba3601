package disk

import (
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/pborman/uuid"

	"github.com/coreos/blkcheck/cluster"
	"github.com/coreos/blkcheck/sector"
)

// Corruption is one sector that failed verification, together with what the
// sector claims to be.
type Corruption struct {
	ClusterID uint64
	SectorID  uint64

	// Claimed is the record decoded from the sector as it is on the device.
	// It is nil if the cluster could not be re-read.
	Claimed *sector.Record
}

func (c Corruption) String() string {
	if c.Claimed == nil {
		return fmt.Sprintf("cluster %d sector %d", c.ClusterID, c.SectorID)
	}
	return fmt.Sprintf("cluster %d sector %d claims %d:%d written %q",
		c.ClusterID, c.SectorID, c.Claimed.ClusterID, c.Claimed.SectorID, c.Claimed.LocalTime)
}

// Report is the result of a check pass.
type Report struct {
	RunID    string
	Device   string
	DiskSize uint64
	Clusters uint64 // whole clusters on the device
	Checked  uint64 // clusters actually verified
	Started  time.Time
	Finished time.Time

	bad         *roaring64.Bitmap
	retain      int
	corruptions []Corruption
}

func newReport(device string, diskSize uint64, retain int) *Report {
	return &Report{
		RunID:    uuid.New(),
		Device:   device,
		DiskSize: diskSize,
		Clusters: diskSize / cluster.Size,
		Started:  time.Now(),
		bad:      roaring64.New(),
		retain:   retain,
	}
}

func globalSector(clusterID, sectorID uint64) uint64 {
	return clusterID*cluster.Sectors + sectorID
}

// mark records a corrupted sector and reports whether its Corruption will be
// retained.
func (r *Report) mark(clusterID, sectorID uint64) bool {
	r.bad.Add(globalSector(clusterID, sectorID))
	return len(r.corruptions) < r.retain
}

func (r *Report) keep(c Corruption) {
	if len(r.corruptions) < r.retain {
		r.corruptions = append(r.corruptions, c)
	}
}

// Clean reports whether no corrupted sector was found.
func (r *Report) Clean() bool {
	return r.bad.IsEmpty()
}

// Count returns the number of corrupted sectors found.
func (r *Report) Count() uint64 {
	return r.bad.GetCardinality()
}

// Contains reports whether the given sector was found corrupted.
func (r *Report) Contains(clusterID, sectorID uint64) bool {
	return r.bad.Contains(globalSector(clusterID, sectorID))
}

// Corruptions returns the first corrupted sectors found, in device order, up
// to the disk's retention limit. Count and Contains cover every sector.
func (r *Report) Corruptions() []Corruption {
	return r.corruptions
}

// Omitted returns the number of corrupted sectors beyond the retention limit.
func (r *Report) Omitted() uint64 {
	return r.Count() - uint64(len(r.corruptions))
}

// Sectors returns the corrupted sector indices of one cluster in ascending
// order.
func (r *Report) Sectors(clusterID uint64) []uint64 {
	var out []uint64
	first := globalSector(clusterID, 0)
	it := r.bad.Iterator()
	it.AdvanceIfNeeded(first)
	for it.HasNext() {
		s := it.Next()
		if s >= first+cluster.Sectors {
			break
		}
		out = append(out, s-first)
	}
	return out
}

// ClusterIDs returns the ids of the clusters with at least one corrupted
// sector, in ascending order.
func (r *Report) ClusterIDs() []uint64 {
	var out []uint64
	it := r.bad.Iterator()
	for it.HasNext() {
		id := it.Next() / cluster.Sectors
		if len(out) == 0 || out[len(out)-1] != id {
			out = append(out, id)
		}
	}
	return out
}

func (r *Report) String() string {
	if r.Clean() {
		return fmt.Sprintf("%s: %d of %d clusters checked, no corruption", r.Device, r.Checked, r.Clusters)
	}
	return fmt.Sprintf("%s: %d of %d clusters checked, %d corrupted sectors in %d clusters",
		r.Device, r.Checked, r.Clusters, r.Count(), len(r.ClusterIDs()))
}
