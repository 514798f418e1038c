package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_remote_writes_total",
		Help: "Background remote document writes by store and result.",
	}, []string{"store", "result"})

	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_remote_fetch_failures_total",
		Help: "Remote fetches that failed and fell back to cached state.",
	}, []string{"store"})
)
