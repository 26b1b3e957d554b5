package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shurinov/fadroma"
)

const (
	outcomeOk  = "ok"
	outcomeErr = "error"
)

// defines prometheus metrics
var (
	promCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fadroma_engine_calls_total",
		Help: "total number of top-level calls",
	}, []string{"kind", "outcome"})

	promDispatch = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fadroma_engine_dispatch_total",
		Help: "total number of dispatched messages",
	}, []string{"kind"})

	promReplies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fadroma_engine_replies_total",
		Help: "total number of reply callbacks",
	}, []string{"result"})

	promReverts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fadroma_engine_reverts_total",
		Help: "total number of reverted checkpoints",
	})

	promHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fadroma_engine_block_height",
		Help: "height of the current block",
	})
)

func init() {
	fadroma.PromCollectors = append(fadroma.PromCollectors, promCalls,
		promDispatch, promReplies, promReverts, promHeight)
}
