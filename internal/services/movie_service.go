// Package services holds the catalogue use cases.
//
// MovieService sits between the HTTP handlers and the record store. It
// normalizes and validates titles, assigns identity to new movies, maps store
// misses to ErrMovieNotFound and applies the search limit default. Every call
// is traced with OpenTelemetry and counted in Prometheus.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-movies-backend/internal/domain"
	"github.com/tbourn/go-movies-backend/internal/repo"
	"github.com/tbourn/go-movies-backend/internal/search"
)

// DefaultSearchLimit is used when a search does not specify a limit.
const DefaultSearchLimit = 10

const tracerName = "services/MovieService"

// MovieRepo defines the record store contract required by MovieService.
// Id-keyed operations act on the first record in insertion order and return
// repo.ErrNotFound when none matches.
type MovieRepo interface {
	// Insert appends m at the end of the collection.
	Insert(ctx context.Context, m *domain.Movie) error

	// List returns all movies in insertion order.
	List(ctx context.Context) ([]domain.Movie, error)

	// Get returns the first movie with the given id.
	Get(ctx context.Context, id string) (*domain.Movie, error)

	// Replace overwrites every mutable field, keeping id and created_at.
	Replace(ctx context.Context, id string, f domain.MovieFields) (*domain.Movie, error)

	// Patch writes only the supplied fields.
	Patch(ctx context.Context, id string, p domain.MoviePatch) (*domain.Movie, error)

	// Delete removes the first movie with the given id.
	Delete(ctx context.Context, id string) error

	// Search returns up to limit movies whose title matches.
	Search(ctx context.Context, m search.Matcher, limit int) ([]domain.Movie, error)

	// Count returns the number of stored movies.
	Count(ctx context.Context) (int64, error)
}

// CreateInput describes a new movie. ID and CreatedAt are optional; when
// zero they are generated.
type CreateInput struct {
	ID        string
	CreatedAt time.Time
	domain.MovieFields
}

// MovieService implements the catalogue operations on top of a MovieRepo.
type MovieService struct {
	// Repo is the record store used by this service.
	Repo MovieRepo

	// DefaultLimit is applied to searches that pass limit 0.
	DefaultLimit int

	// Now and NewID are injectable for tests.
	Now   func() time.Time
	NewID func() string
}

// NewMovieService constructs a MovieService with default search limit,
// UTC clock and UUIDv4 ids.
func NewMovieService(r MovieRepo) *MovieService {
	return &MovieService{
		Repo:         r,
		DefaultLimit: DefaultSearchLimit,
		Now:          func() time.Time { return time.Now().UTC() },
		NewID:        uuid.NewString,
	}
}

// Create validates in, fills in identity and appends the movie.
func (s *MovieService) Create(ctx context.Context, in CreateInput) (m *domain.Movie, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Create",
		trace.WithAttributes(attribute.String("movie.id", in.ID)),
	)
	defer func() { s.finish(ctx, span, "create", err, true) }()

	in.Title = domain.NormalizeTitle(in.Title)
	if in.Title == "" {
		return nil, ErrEmptyTitle
	}

	m = &domain.Movie{ID: in.ID, CreatedAt: in.CreatedAt}
	if m.ID == "" {
		m.ID = s.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.Now()
	} else {
		m.CreatedAt = m.CreatedAt.UTC()
	}
	m.Assign(in.MovieFields)
	span.SetAttributes(attribute.String("movie.id", m.ID))

	if err := s.Repo.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("insert movie: %w", err)
	}
	return m, nil
}

// List returns every movie in insertion order.
func (s *MovieService) List(ctx context.Context) (out []domain.Movie, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "List")
	defer func() {
		span.SetAttributes(attribute.Int("movies.count", len(out)))
		s.finish(ctx, span, "list", err, false)
	}()

	out, err = s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	return out, nil
}

// Get returns the movie with the given id or ErrMovieNotFound.
func (s *MovieService) Get(ctx context.Context, id string) (m *domain.Movie, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Get",
		trace.WithAttributes(attribute.String("movie.id", id)),
	)
	defer func() { s.finish(ctx, span, "get", err, false) }()

	m, err = s.Repo.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound("get movie", err)
	}
	return m, nil
}

// Replace overwrites all mutable fields of a movie. id and created_at are
// preserved.
func (s *MovieService) Replace(ctx context.Context, id string, f domain.MovieFields) (m *domain.Movie, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Replace",
		trace.WithAttributes(attribute.String("movie.id", id)),
	)
	defer func() { s.finish(ctx, span, "replace", err, false) }()

	f.Title = domain.NormalizeTitle(f.Title)
	if f.Title == "" {
		return nil, ErrEmptyTitle
	}
	m, err = s.Repo.Replace(ctx, id, f)
	if err != nil {
		return nil, mapNotFound("replace movie", err)
	}
	return m, nil
}

// Patch applies the supplied fields of p. An empty patch returns the movie
// unchanged.
func (s *MovieService) Patch(ctx context.Context, id string, p domain.MoviePatch) (m *domain.Movie, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Patch",
		trace.WithAttributes(
			attribute.String("movie.id", id),
			attribute.Bool("patch.empty", p.IsEmpty()),
		),
	)
	defer func() { s.finish(ctx, span, "patch", err, false) }()

	if p.Title != nil {
		t := domain.NormalizeTitle(*p.Title)
		if t == "" {
			return nil, ErrEmptyTitle
		}
		p.Title = &t
	}
	m, err = s.Repo.Patch(ctx, id, p)
	if err != nil {
		return nil, mapNotFound("patch movie", err)
	}
	return m, nil
}

// Delete removes the movie with the given id or returns ErrMovieNotFound.
func (s *MovieService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("movie.id", id)),
	)
	defer func() { s.finish(ctx, span, "delete", err, true) }()

	if err = s.Repo.Delete(ctx, id); err != nil {
		return mapNotFound("delete movie", err)
	}
	return nil
}

// Search returns up to limit movies whose title contains query, ignoring
// case, in insertion order. A limit of 0 selects DefaultLimit.
func (s *MovieService) Search(ctx context.Context, query string, limit int) (out []domain.Movie, err error) {
	if limit == 0 {
		limit = s.DefaultLimit
		if limit <= 0 {
			limit = DefaultSearchLimit
		}
	}
	matcher := search.NewMatcher(query)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("search.query", matcher.Query()),
			attribute.Int("search.limit", limit),
		),
	)
	defer func() {
		span.SetAttributes(attribute.Int("search.results", len(out)))
		s.finish(ctx, span, "search", err, false)
	}()

	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	out, err = s.Repo.Search(ctx, matcher, limit)
	if err != nil {
		return nil, fmt.Errorf("search movies: %w", err)
	}
	return out, nil
}

// Count returns the number of stored movies.
func (s *MovieService) Count(ctx context.Context) (n int64, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Count")
	defer func() { s.finish(ctx, span, "count", err, false) }()

	n, err = s.Repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count movies: %w", err)
	}
	moviesStored.Set(float64(n))
	return n, nil
}

// finish records the outcome of op on span and in metrics, then ends span.
// When mutated is set and op succeeded, the stored-movies gauge is refreshed.
func (s *MovieService) finish(ctx context.Context, span trace.Span, op string, err error, mutated bool) {
	defer span.End()

	outcome := outcomeOf(err)
	storeOps.WithLabelValues(op, outcome).Inc()
	if outcome == outcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if mutated && err == nil {
		if n, cerr := s.Repo.Count(ctx); cerr == nil {
			moviesStored.Set(float64(n))
		}
	}
}

func mapNotFound(op string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMovieNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
