package repo

import (
	"context"
	"slices"
	"sync"

	"github.com/tbourn/go-movies-backend/internal/domain"
	"github.com/tbourn/go-movies-backend/internal/search"
)

// MemoryStore keeps movies in a slice in insertion order. It is safe for
// concurrent use; reads share the lock, mutations take it exclusively.
//
// Every method hands out copies, so callers can never alias the stored
// records.
type MemoryStore struct {
	mu     sync.RWMutex
	movies []domain.Movie
	seq    uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends m at the end of the collection and assigns its Seq.
func (s *MemoryStore) Insert(ctx context.Context, m *domain.Movie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	m.Seq = s.seq
	s.movies = append(s.movies, *m)
	return nil
}

// List returns every movie in insertion order. The result is never nil.
func (s *MemoryStore) List(ctx context.Context) ([]domain.Movie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Movie, len(s.movies))
	copy(out, s.movies)
	return out, nil
}

// Get returns the first movie with the given id or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Movie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	m := s.movies[i]
	return &m, nil
}

// Replace overwrites the mutable fields of the first movie with the given id.
func (s *MemoryStore) Replace(ctx context.Context, id string, f domain.MovieFields) (*domain.Movie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	s.movies[i].Assign(f)
	m := s.movies[i]
	return &m, nil
}

// Patch applies the supplied fields of p to the first movie with the given id.
func (s *MemoryStore) Patch(ctx context.Context, id string, p domain.MoviePatch) (*domain.Movie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	p.Apply(&s.movies[i])
	m := s.movies[i]
	return &m, nil
}

// Delete removes the first movie with the given id, keeping the order of the
// rest.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.movies = slices.Delete(s.movies, i, i+1)
	return nil
}

// Search returns up to limit movies whose title matches m, in insertion order.
func (s *MemoryStore) Search(ctx context.Context, m search.Matcher, limit int) ([]domain.Movie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Filter copies matching elements into a fresh slice.
	return search.Filter(s.movies, m, limit), nil
}

// Count returns the number of stored movies.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.movies)), nil
}

// indexOf must be called with the lock held.
func (s *MemoryStore) indexOf(id string) int {
	for i := range s.movies {
		if s.movies[i].ID == id {
			return i
		}
	}
	return -1
}
