package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-movies-backend/internal/domain"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("scope = ? AND key = ? AND expires_at > ?", scope, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutIdempotency binds (scope, key) to movieID for ttl. An existing row for
// the pair, live or expired, is rebound to the new movie so that later
// retries replay it.
func PutIdempotency(ctx context.Context, db *gorm.DB, scope, key, movieID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		Scope:     scope,
		Key:       key,
		MovieID:   movieID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"movie_id", "status", "created_at", "expires_at"}),
		}).
		Create(rec).Error
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// IdempotencyStore binds the idempotency helpers to a database and a TTL.
type IdempotencyStore struct {
	DB  *gorm.DB
	TTL time.Duration
}

// NewIdempotencyStore returns a store whose records live for ttl.
// A ttl <= 0 falls back to 24h.
func NewIdempotencyStore(db *gorm.DB, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{DB: db, TTL: ttl}
}

// Lookup returns the live record for (scope, key) or ErrNotFound.
func (s *IdempotencyStore) Lookup(ctx context.Context, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, s.DB, scope, key, now)
}

// Exists reports whether a live record exists. Lookup failures count as absent.
func (s *IdempotencyStore) Exists(ctx context.Context, scope, key string, now time.Time) (bool, error) {
	rec, err := s.Lookup(ctx, scope, key, now)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Remember records that (scope, key) produced movieID with the given status,
// replacing whatever the pair pointed at before.
func (s *IdempotencyStore) Remember(ctx context.Context, scope, key, movieID string, status int) error {
	_, err := PutIdempotency(ctx, s.DB, scope, key, movieID, status, s.TTL)
	return err
}

// PurgeExpired deletes every record that expired at or before now.
func (s *IdempotencyStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// RunJanitor purges expired records every interval until ctx is done.
// Failures are logged and retried on the next tick.
func (s *IdempotencyStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := s.PurgeExpired(ctx, now.UTC())
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Msg("idempotency purge failed")
				}
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
			}
		}
	}
}
