// Package domain defines the movie catalogue models shared by the store,
// service, and HTTP layers. Movie is also mapped with GORM for the SQLite
// backed store.
package domain

import (
	"strings"
	"time"
)

// Movie is the single catalogue entity.
//
// Fields:
//   - Seq: insertion sequence. Primary key in SQLite, hidden from JSON. It
//     orders listings and breaks ties between records sharing an ID.
//   - ID: opaque identifier (UUID when generated). Indexed but deliberately
//     not unique: caller-supplied ids are trusted as-is.
//   - CreatedAt: set once at creation, never updated.
type Movie struct {
	Seq         uint64    `json:"-"            gorm:"primaryKey;autoIncrement"`
	ID          string    `json:"id"           gorm:"type:varchar(64);not null;index:idx_movies_id"`
	Title       string    `json:"title"        gorm:"type:varchar(255);not null"`
	Genre       string    `json:"genre"        gorm:"type:varchar(128);not null"`
	Year        int       `json:"year"         gorm:"not null"`
	Rating      int       `json:"rating"       gorm:"not null"`
	IsAvailable bool      `json:"is_available" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"   gorm:"not null"`
}

// TableName returns the database table name for Movie.
func (Movie) TableName() string { return "movies" }

// MovieFields is the complete set of mutable movie attributes. It is what a
// full update writes and what a create starts from.
type MovieFields struct {
	Title       string
	Genre       string
	Year        int
	Rating      int
	IsAvailable bool
}

// Fields extracts the mutable attributes of m.
func (m Movie) Fields() MovieFields {
	return MovieFields{
		Title:       m.Title,
		Genre:       m.Genre,
		Year:        m.Year,
		Rating:      m.Rating,
		IsAvailable: m.IsAvailable,
	}
}

// Assign overwrites every mutable attribute of m. ID, Seq and CreatedAt are
// left alone.
func (m *Movie) Assign(f MovieFields) {
	m.Title = f.Title
	m.Genre = f.Genre
	m.Year = f.Year
	m.Rating = f.Rating
	m.IsAvailable = f.IsAvailable
}

// MoviePatch carries a partial update. A nil field was not supplied and is
// left untouched; a non-nil field is written even when it holds a zero value.
type MoviePatch struct {
	Title       *string
	Genre       *string
	Year        *int
	Rating      *int
	IsAvailable *bool
}

// IsEmpty reports whether the patch supplies no field at all.
func (p MoviePatch) IsEmpty() bool {
	return p.Title == nil && p.Genre == nil && p.Year == nil && p.Rating == nil && p.IsAvailable == nil
}

// Apply writes the supplied fields onto m.
func (p MoviePatch) Apply(m *Movie) {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Genre != nil {
		m.Genre = *p.Genre
	}
	if p.Year != nil {
		m.Year = *p.Year
	}
	if p.Rating != nil {
		m.Rating = *p.Rating
	}
	if p.IsAvailable != nil {
		m.IsAvailable = *p.IsAvailable
	}
}

// Columns returns the supplied fields keyed by column name, for SQL updates.
func (p MoviePatch) Columns() map[string]any {
	cols := make(map[string]any, 5)
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Genre != nil {
		cols["genre"] = *p.Genre
	}
	if p.Year != nil {
		cols["year"] = *p.Year
	}
	if p.Rating != nil {
		cols["rating"] = *p.Rating
	}
	if p.IsAvailable != nil {
		cols["is_available"] = *p.IsAvailable
	}
	return cols
}

// NormalizeTitle trims surrounding whitespace from a title.
func NormalizeTitle(s string) string {
	return strings.TrimSpace(s)
}
