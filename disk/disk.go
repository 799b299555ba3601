package disk

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/coreos/blkcheck"
	"github.com/coreos/blkcheck/cluster"
	"github.com/coreos/blkcheck/sector"
)

const (
	// progressEvery is how many clusters pass between progress log lines.
	progressEvery = 1024

	// DefaultRetained is how many corruptions a report keeps in full.
	DefaultRetained = 1024
)

// Disk runs fill, check and fault injection against one device. It keeps no
// state between calls; every operation opens the device itself.
type Disk struct {
	cfg       blkcheck.Config
	rng       *rand.Rand
	retain    int
	onCorrupt func(Corruption)
}

func New(cfg blkcheck.Config) *Disk {
	return &Disk{cfg: cfg, retain: DefaultRetained}
}

// SetRand sets the source used for fault injection.
func (d *Disk) SetRand(r *rand.Rand) {
	d.rng = r
}

// SetRetained sets how many corruptions a report keeps with their claimed
// records. Sectors past the limit are still counted.
func (d *Disk) SetRetained(n int) {
	d.retain = n
}

// OnCorruption registers fn to be called with every corrupted sector as a
// check finds it, whether or not the report retains it.
func (d *Disk) OnCorruption(fn func(Corruption)) {
	d.onCorrupt = fn
}

// Config returns the device configuration the disk was created with.
func (d *Disk) Config() blkcheck.Config {
	return d.cfg
}

// session is one open device plus the cluster buffer reused for every
// cluster of an operation.
type session struct {
	dev       blkcheck.Device
	clusters  uint64
	clu       *cluster.Cluster
	rbuf      []byte
	onCorrupt func(Corruption)
}

func (d *Disk) open() (*session, error) {
	dev, err := blkcheck.OpenDevice(d.cfg)
	if err != nil {
		return nil, err
	}
	if cluster.Size%dev.Alignment() != 0 {
		dev.Close()
		return nil, fmt.Errorf("%w: cluster size %d is not a multiple of the device alignment %d",
			blkcheck.ErrAlignment, cluster.Size, dev.Alignment())
	}
	s := &session{
		dev:       dev,
		onCorrupt: d.onCorrupt,
		clusters:  dev.Size() / cluster.Size,
		clu: cluster.New(cluster.Config{
			DiskSize: dev.Size(),
			Strict:   d.cfg.StrictHeader,
			Rand:     d.rng,
		}),
	}
	clog.Debugf("%s: %s, %d clusters", dev.Path(), humanize.IBytes(dev.Size()), s.clusters)
	return s, nil
}

func (s *session) Close() error {
	return s.dev.Close()
}

func (s *session) checkRange(id uint64) error {
	if id >= s.clusters {
		return fmt.Errorf("%w: cluster %d, %s has %d clusters", blkcheck.ErrClusterOutOfRange, id, s.dev.Path(), s.clusters)
	}
	return nil
}

func (s *session) read(id uint64) error {
	s.clu.SetID(id)
	n, err := s.dev.ReadAlignedAt(s.clu.Buf, s.clu.Offset())
	if err != nil {
		return err
	}
	if n != cluster.Size {
		return fmt.Errorf("%w: short read of cluster %d: %d bytes", blkcheck.ErrIO, id, n)
	}
	return nil
}

func (s *session) write(id uint64) error {
	n, err := s.dev.WriteAlignedAt(s.clu.Buf, id*cluster.Size)
	if err != nil {
		return err
	}
	if n != cluster.Size {
		return fmt.Errorf("%w: short write of cluster %d: %d bytes", blkcheck.ErrIO, id, n)
	}
	return nil
}

func (s *session) fill(id uint64) error {
	s.clu.SetID(id)
	s.clu.Fill()
	if err := s.write(id); err != nil {
		return err
	}
	promClustersFilled.Inc()
	return nil
}

func (s *session) check(id uint64, report *Report) error {
	if err := s.read(id); err != nil {
		return err
	}
	promClustersChecked.Inc()
	report.Checked++

	bad := s.clu.Check()
	if len(bad) == 0 {
		return nil
	}
	clog.Warningf("%s: cluster %d has %d bad sectors: %v", report.RunID, id, len(bad), bad)
	promCorruptClusters.Inc()
	promCorruptSectors.Add(float64(len(bad)))

	var (
		onDisk []byte
		reread bool
	)
	for _, sid := range bad {
		kept := report.mark(id, sid)
		if !kept && s.onCorrupt == nil {
			continue
		}
		if !reread {
			reread = true
			var err error
			if onDisk, err = s.reread(id); err != nil {
				clog.Errorf("couldn't re-read cluster %d: %v", id, err)
			}
		}
		c := Corruption{ClusterID: id, SectorID: sid}
		if onDisk != nil {
			c.Claimed = &sector.Record{}
			c.Claimed.Deserialize(onDisk, int(sid*sector.Size))
			clog.Debugf("%s", c.Claimed)
		}
		if kept {
			report.keep(c)
		}
		if s.onCorrupt != nil {
			s.onCorrupt(c)
		}
	}
	return nil
}

// reread reads a cluster from the device again, into a buffer separate from
// the one that was just verified.
func (s *session) reread(id uint64) ([]byte, error) {
	if s.rbuf == nil {
		s.rbuf = make([]byte, cluster.Size)
	}
	n, err := s.dev.ReadAlignedAt(s.rbuf, id*cluster.Size)
	if err != nil {
		return nil, err
	}
	if n != cluster.Size {
		return nil, fmt.Errorf("%w: short read of cluster %d: %d bytes", blkcheck.ErrIO, id, n)
	}
	return s.rbuf, nil
}

// showSector re-reads a single sector from the device, through the smallest
// aligned chunk that holds it, and decodes it.
func (s *session) showSector(clusterID, sectorID uint64) (*sector.Record, error) {
	align := s.dev.Alignment()
	off := clusterID*cluster.Size + sectorID*sector.Size
	base := off - off%align
	buf := make([]byte, align)
	n, err := s.dev.ReadAlignedAt(buf, base)
	if err != nil {
		return nil, err
	}
	if uint64(n) != align {
		return nil, fmt.Errorf("%w: short read of sector %d:%d: %d bytes", blkcheck.ErrIO, clusterID, sectorID, n)
	}
	rec := &sector.Record{}
	rec.Deserialize(buf, int(off-base))
	return rec, nil
}

func logProgress(op string, id, total uint64, started time.Time) {
	if id == 0 || id%progressEvery != 0 {
		return
	}
	elapsed := time.Since(started)
	rate := float64(id*cluster.Size) / elapsed.Seconds()
	clog.Infof("%s: %d/%d clusters, %s/s", op, id, total, humanize.IBytes(uint64(rate)))
}

// FillWholeDisk writes fresh records to every whole cluster of the device in
// increasing order. A trailing partial cluster is never written. When ctx is
// cancelled the pass stops after the cluster in flight.
func (d *Disk) FillWholeDisk(ctx context.Context) error {
	s, err := d.open()
	if err != nil {
		return err
	}
	defer s.Close()

	started := time.Now()
	clog.Infof("filling %d clusters of %s", s.clusters, s.dev.Path())
	for id := uint64(0); id < s.clusters; id++ {
		if err := ctx.Err(); err != nil {
			clog.Errorf("fill of %s stopped at cluster %d: %v", s.dev.Path(), id, err)
			return err
		}
		if err := s.fill(id); err != nil {
			clog.Errorf("fill of %s failed at cluster %d: %v", s.dev.Path(), id, err)
			return err
		}
		logProgress("fill", id, s.clusters, started)
	}
	promPassSeconds.WithLabelValues("fill").Observe(time.Since(started).Seconds())
	clog.Infof("filled %s in %v", s.dev.Path(), time.Since(started))
	return nil
}

// FillDisk writes fresh records to a single cluster.
func (d *Disk) FillDisk(ctx context.Context, clusterID uint64) error {
	s, err := d.open()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.checkRange(clusterID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fill(clusterID)
}

// CheckWholeDisk verifies every whole cluster of the device and reports each
// corrupted sector found. Corruption never stops the pass; device errors and
// cancellation do, in which case the report covers the clusters checked so
// far.
func (d *Disk) CheckWholeDisk(ctx context.Context) (*Report, error) {
	s, err := d.open()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	report := newReport(s.dev.Path(), s.dev.Size(), d.retain)
	clog.Infof("%s: checking %d clusters of %s", report.RunID, s.clusters, s.dev.Path())
	for id := uint64(0); id < s.clusters; id++ {
		if err := ctx.Err(); err != nil {
			report.Finished = time.Now()
			return report, err
		}
		if err := s.check(id, report); err != nil {
			clog.Errorf("check of %s failed at cluster %d: %v", s.dev.Path(), id, err)
			report.Finished = time.Now()
			return report, err
		}
		logProgress("check", id, s.clusters, report.Started)
	}
	report.Finished = time.Now()
	promPassSeconds.WithLabelValues("check").Observe(report.Finished.Sub(report.Started).Seconds())
	clog.Infof("%s: %s", report.RunID, report)
	return report, nil
}

// CheckDisk verifies a single cluster.
func (d *Disk) CheckDisk(ctx context.Context, clusterID uint64) (*Report, error) {
	s, err := d.open()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.checkRange(clusterID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := newReport(s.dev.Path(), s.dev.Size(), d.retain)
	err = s.check(clusterID, report)
	report.Finished = time.Now()
	return report, err
}

// InjectClusterError corrupts a random byte range of one sector of a cluster
// on the device. It returns false only when the cluster is out of range or
// the device could not be accessed.
func (d *Disk) InjectClusterError(ctx context.Context, clusterID uint64) (bool, error) {
	s, err := d.open()
	if err != nil {
		return false, err
	}
	defer s.Close()

	if err := s.checkRange(clusterID); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.read(clusterID); err != nil {
		return false, err
	}
	f, ok := s.clu.InjectError()
	if err := s.write(clusterID); err != nil {
		return false, err
	}
	promFaultsInjected.Inc()
	clog.Noticef("injected fault into %s cluster %d sector %d bytes [%d, %d)",
		s.dev.Path(), clusterID, f.Sector, f.Start, f.End)
	return ok, nil
}

// ShowSector re-reads one sector from the device and decodes it without
// verifying it.
func (d *Disk) ShowSector(clusterID, sectorID uint64) (*sector.Record, error) {
	s, err := d.open()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.checkRange(clusterID); err != nil {
		return nil, err
	}
	if sectorID >= cluster.Sectors {
		return nil, fmt.Errorf("%w: sector %d, clusters have %d sectors", blkcheck.ErrSectorOutOfRange, sectorID, cluster.Sectors)
	}
	return s.showSector(clusterID, sectorID)
}
