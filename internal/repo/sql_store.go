package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-movies-backend/internal/domain"
	"github.com/tbourn/go-movies-backend/internal/search"
)

// ErrNotFound is returned when no movie matches the requested id.
// It aliases gorm.ErrRecordNotFound so both stores report the same error.
var ErrNotFound = gorm.ErrRecordNotFound

// searchBatchSize is the number of rows read per batch while searching.
const searchBatchSize = 100

var errStopBatches = errors.New("stop batches")

// SQLStore persists movies through GORM. Rows are ordered by their seq
// primary key, so listing and first-match lookups follow insertion order
// exactly like MemoryStore.
//
// Read-modify-write operations (Replace, Patch, Delete) resolve the first
// matching row and write it inside a single transaction.
type SQLStore struct {
	DB *gorm.DB
}

// NewSQLStore wraps db. The movies table must already be migrated.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// Insert appends m; the database assigns m.Seq.
func (s *SQLStore) Insert(ctx context.Context, m *domain.Movie) error {
	m.Seq = 0
	return s.DB.WithContext(ctx).Create(m).Error
}

// List returns all movies ordered by insertion. The result is never nil.
func (s *SQLStore) List(ctx context.Context) ([]domain.Movie, error) {
	out := make([]domain.Movie, 0)
	err := s.DB.WithContext(ctx).
		Order("seq asc").
		Find(&out).Error
	return out, err
}

// Get returns the first movie with the given id or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, id string) (*domain.Movie, error) {
	return firstByID(s.DB.WithContext(ctx), id)
}

// Replace overwrites every mutable column of the first movie with the given id.
func (s *SQLStore) Replace(ctx context.Context, id string, f domain.MovieFields) (*domain.Movie, error) {
	var out *domain.Movie
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := firstByID(tx, id)
		if err != nil {
			return err
		}
		m.Assign(f)
		if err := tx.Save(m).Error; err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Patch writes only the supplied columns of the first movie with the given id.
func (s *SQLStore) Patch(ctx context.Context, id string, p domain.MoviePatch) (*domain.Movie, error) {
	var out *domain.Movie
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := firstByID(tx, id)
		if err != nil {
			return err
		}
		if !p.IsEmpty() {
			// map updates write zero values too
			if err := tx.Model(&domain.Movie{}).
				Where("seq = ?", m.Seq).
				Updates(p.Columns()).Error; err != nil {
				return err
			}
			p.Apply(m)
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the first movie with the given id.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := firstByID(tx, id)
		if err != nil {
			return err
		}
		return tx.Where("seq = ?", m.Seq).Delete(&domain.Movie{}).Error
	})
}

// Search streams rows in insertion order and keeps those whose title
// matches, stopping as soon as limit results are collected.
func (s *SQLStore) Search(ctx context.Context, m search.Matcher, limit int) ([]domain.Movie, error) {
	out := make([]domain.Movie, 0)
	if limit <= 0 {
		return out, nil
	}

	var batch []domain.Movie
	res := s.DB.WithContext(ctx).
		Order("seq asc").
		FindInBatches(&batch, searchBatchSize, func(tx *gorm.DB, _ int) error {
			out = append(out, search.Filter(batch, m, limit-len(out))...)
			if len(out) >= limit {
				return errStopBatches
			}
			return nil
		})
	if res.Error != nil && !errors.Is(res.Error, errStopBatches) {
		return nil, res.Error
	}
	return out, nil
}

// Count returns the number of stored movies.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var total int64
	err := s.DB.WithContext(ctx).
		Model(&domain.Movie{}).
		Count(&total).Error
	return total, err
}

func firstByID(db *gorm.DB, id string) (*domain.Movie, error) {
	var m domain.Movie
	if err := db.Where("id = ?", id).Order("seq asc").First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
