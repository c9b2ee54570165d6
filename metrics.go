package formula

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK        = "ok"
	resultSoftFail  = "soft_fail"
	resultMalformed = "malformed"

	cycleFound    = "cycle"
	cycleNotFound = "acyclic"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formula_evaluations_total",
		Help: "Total formula evaluations by result",
	}, []string{"result"})

	softFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formula_soft_failures_total",
		Help: "Soft failures absorbed during evaluation by error code",
	}, []string{"code"})

	cycleChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formula_cycle_checks_total",
		Help: "Circular dependency checks by outcome",
	}, []string{"outcome"})

	recalculatedCells = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "formula_recalculated_cells",
		Help:    "Number of dependent cells recalculated per change",
		Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 500, 1000},
	})

	unorderedCellsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formula_unordered_cells_total",
		Help: "Dependent cells that could not be topologically ordered because of a cycle",
	})
)
