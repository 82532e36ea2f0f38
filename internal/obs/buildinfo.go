package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// buildInfo is a constant 1 gauge labelled with the client version.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pitchgate_build_info",
			Help: "Pitchgate client build information.",
		},
		[]string{"version", "goversion"},
	)
)

// InitBuildInfo registers pitchgate_build_info once and sets it for version.
func InitBuildInfo(version string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, runtime.Version()).Set(1)
}
