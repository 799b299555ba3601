// storage is the package which implements the device drivers the checker
// runs against: raw block devices opened for direct I/O, image files mapped
// into memory and named in-memory devices. Every driver enforces the same
// alignment contract so the integrity path behaves identically on all of
// them.
package storage

import (
	"fmt"

	"github.com/coreos/pkg/capnslog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coreos/blkcheck"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/blkcheck", "storage")

var (
	promDeviceBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blkcheck_storage_device_bytes",
		Help: "Size of the most recently opened device",
	}, []string{"driver"})
	promBytesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blkcheck_storage_read_bytes",
		Help: "Number of bytes read with aligned I/O",
	}, []string{"driver"})
	promBytesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blkcheck_storage_written_bytes",
		Help: "Number of bytes written with aligned I/O",
	}, []string{"driver"})
	promReadsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blkcheck_storage_failed_reads",
		Help: "Number of aligned reads that failed",
	}, []string{"driver"})
	promWritesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blkcheck_storage_failed_writes",
		Help: "Number of aligned writes that failed",
	}, []string{"driver"})
	promUnaligned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blkcheck_storage_unaligned_requests",
		Help: "Number of aligned I/O requests rejected for their length or offset",
	}, []string{"driver"})
)

func init() {
	prometheus.MustRegister(promDeviceBytes)
	prometheus.MustRegister(promBytesRead)
	prometheus.MustRegister(promBytesWritten)
	prometheus.MustRegister(promReadsFailed)
	prometheus.MustRegister(promWritesFailed)
	prometheus.MustRegister(promUnaligned)
}

// checkRequest validates an aligned request of length bytes at off against
// the alignment contract and the device bounds. ok is false when the request
// must return zero bytes without I/O.
func checkRequest(driver string, dev blkcheck.Device, compat bool, length int, off uint64) (ok bool, err error) {
	ok, err = blkcheck.CheckAlignment(length, off, dev.Alignment(), compat)
	if !ok {
		promUnaligned.WithLabelValues(driver).Inc()
		return false, err
	}
	if off+uint64(length) > dev.Size() {
		return false, fmt.Errorf("%w: %d bytes at offset %d is past the end of %s (%d bytes)",
			blkcheck.ErrOutOfBounds, length, off, dev.Path(), dev.Size())
	}
	return true, nil
}

// validAlignment reports whether a is a usable direct I/O alignment: a power
// of two no smaller than a sector.
func validAlignment(a uint64) bool {
	return a >= 512 && a&(a-1) == 0
}

func resolveAlignment(configured, discovered uint64) (uint64, error) {
	switch {
	case configured != 0:
		if !validAlignment(configured) {
			return 0, fmt.Errorf("%w: invalid alignment %d", blkcheck.ErrAlignment, configured)
		}
		return configured, nil
	case validAlignment(discovered):
		return discovered, nil
	}
	return blkcheck.DefaultAlignment, nil
}
