package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)

var (
	// storeOps counts service calls against the record store by operation
	// and outcome.
	storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movie_store_operations_total",
			Help: "Total number of movie store operations.",
		},
		[]string{"op", "outcome"},
	)

	// moviesStored tracks the collection size after each mutation.
	moviesStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "movies_stored",
			Help: "Current number of stored movies.",
		},
	)
)

func init() {
	prometheus.MustRegister(storeOps, moviesStored)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrMovieNotFound):
		return outcomeNotFound
	case errors.Is(err, ErrEmptyTitle), errors.Is(err, ErrInvalidLimit):
		return outcomeInvalid
	default:
		return outcomeError
	}
}
