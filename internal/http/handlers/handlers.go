package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-movies-backend/internal/domain"
	"github.com/tbourn/go-movies-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// MovieService defines the catalogue operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MovieService interface {
	// Create validates and stores a new movie and returns the stored record.
	Create(ctx context.Context, in services.CreateInput) (*domain.Movie, error)
	// List returns every movie in insertion order.
	List(ctx context.Context) ([]domain.Movie, error)
	// Get returns the first movie with the given id.
	Get(ctx context.Context, id string) (*domain.Movie, error)
	// Replace overwrites every mutable field, keeping id and created_at.
	Replace(ctx context.Context, id string, f domain.MovieFields) (*domain.Movie, error)
	// Patch writes only the supplied fields.
	Patch(ctx context.Context, id string, p domain.MoviePatch) (*domain.Movie, error)
	// Delete removes the first movie with the given id.
	Delete(ctx context.Context, id string) error
	// Search returns up to limit movies whose title contains query; a limit
	// of 0 selects the service default.
	Search(ctx context.Context, query string, limit int) ([]domain.Movie, error)
	// Count returns the number of stored movies.
	Count(ctx context.Context) (int64, error)
}

// IdempotencyStore persists create outcomes keyed by (scope, key).
type IdempotencyStore interface {
	Lookup(ctx context.Context, scope, key string, now time.Time) (*domain.Idempotency, error)
	Remember(ctx context.Context, scope, key, movieID string, status int) error
}

//
// Handler wiring
//

// Handlers groups the JSON API and HTML page endpoints. idem may be nil, in
// which case Idempotency-Key headers are accepted but not honoured.
type Handlers struct {
	svc  MovieService
	idem IdempotencyStore
}

// New constructs and returns a Handlers instance bound to the given services.
func New(svc MovieService, idem IdempotencyStore) *Handlers {
	return &Handlers{svc: svc, idem: idem}
}

// failService translates a service error into the error envelope.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMovieNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, detailMovieNotFound)
	case errors.Is(err, services.ErrEmptyTitle), errors.Is(err, services.ErrInvalidLimit):
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "request canceled")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
