// disk drives fill, check and fault injection passes over a whole device,
// one cluster at a time.
package disk

import (
	"github.com/coreos/pkg/capnslog"
	"github.com/prometheus/client_golang/prometheus"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/blkcheck", "disk")

var (
	promClustersFilled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blkcheck_disk_filled_clusters",
		Help: "Number of clusters filled with fresh sector records",
	})
	promClustersChecked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blkcheck_disk_checked_clusters",
		Help: "Number of clusters read back and verified",
	})
	promCorruptClusters = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blkcheck_disk_corrupt_clusters",
		Help: "Number of verified clusters with at least one bad sector",
	})
	promCorruptSectors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blkcheck_disk_corrupt_sectors",
		Help: "Number of sectors that failed verification",
	})
	promFaultsInjected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blkcheck_disk_injected_faults",
		Help: "Number of faults injected into clusters",
	})
	promPassSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blkcheck_disk_pass_seconds",
		Help:    "Duration of whole-disk passes",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(promClustersFilled)
	prometheus.MustRegister(promClustersChecked)
	prometheus.MustRegister(promCorruptClusters)
	prometheus.MustRegister(promCorruptSectors)
	prometheus.MustRegister(promFaultsInjected)
	prometheus.MustRegister(promPassSeconds)
}
