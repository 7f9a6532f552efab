// Package domain defines the movie catalogue models shared by the store,
// service, and HTTP layers.
package domain

import "time"

// Idempotency records the outcome of a create request so that a retry with
// the same Idempotency-Key replays the original movie instead of inserting a
// second one. Records are keyed by (scope, key), where scope is the route
// that produced them, and expire at ExpiresAt.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Scope     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_scope_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_scope_key,priority:2"`
	MovieID   string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record is no longer replayable at now.
func (i Idempotency) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}
