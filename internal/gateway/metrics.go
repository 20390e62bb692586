package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "educhain_submissions_total",
		Help: "Ledger write submissions by operation.",
	}, []string{"op"})

	confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "educhain_confirmations_total",
		Help: "Confirmed ledger writes by operation.",
	}, []string{"op"})

	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "educhain_failures_total",
		Help: "Classified ledger write failures by operation and error code.",
	}, []string{"op", "code"})
)
