package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals
var (
	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "duelist",
		Name:      "commits_total",
		Help:      "Duel commits by entry point and result.",
	}, []string{"entry_point", "result"})

	ScoreMagnitude = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "duelist",
		Name:      "score_magnitude",
		Help:      "Absolute value of computed duel scores.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "duelist",
		Name:      "settlements_total",
		Help:      "Settlement dispatches by status.",
	}, []string{"status"})
)
