// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	stageRead   = "read"
	stageHandle = "handle"
	stageWrite  = "write"
)

type metrics struct {
	processed prometheus.Counter
	failures  *prometheus.CounterVec
	duration  prometheus.Histogram
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "execvm",
			Name:      "messages_processed_total",
			Help:      "Number of messages answered by the service loop",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execvm",
			Name:      "message_failures_total",
			Help:      "Number of messages dropped by the service loop, by stage",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "execvm",
			Name:      "message_duration_seconds",
			Help:      "Time spent handling one message",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if registerer == nil {
		return m, nil
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(m.processed),
		registerer.Register(m.failures),
		registerer.Register(m.duration),
	)
	return m, errs.Err
}
