package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Image pipeline metrics
var (
	ImageDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_downloads_total",
			Help: "Total number of image download attempts.",
		},
		[]string{"status"},
	)

	ImageProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_probes_total",
			Help: "Total number of image metadata probes.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		ImageDownloadsTotal,
		ImageProbesTotal,
	)
}
