// Package search implements the title search used by the movie stores: a
// case-insensitive substring match that keeps insertion order and truncates
// to a limit.
//
// Case-insensitivity uses Unicode case folding (golang.org/x/text/cases)
// rather than strings.ToLower, so final sigma and other special forms compare
// equal to their regular counterparts.
package search

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-movies-backend/internal/domain"
)

// Matcher tests titles against a pre-folded query. The zero value matches
// every title. A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	query  string
	folded string
}

// NewMatcher prepares a matcher for query.
func NewMatcher(query string) Matcher {
	return Matcher{query: query, folded: Fold(query)}
}

// Query returns the original, unfolded query.
func (m Matcher) Query() string { return m.query }

// Match reports whether title contains the query, ignoring case.
func (m Matcher) Match(title string) bool {
	if m.folded == "" {
		return true
	}
	return strings.Contains(Fold(title), m.folded)
}

// Filter returns, in order, the movies whose title matches, stopping once
// limit results are collected. A limit <= 0 returns an empty slice.
func Filter(movies []domain.Movie, m Matcher, limit int) []domain.Movie {
	out := make([]domain.Movie, 0)
	if limit <= 0 {
		return out
	}
	for _, mv := range movies {
		if !m.Match(mv.Title) {
			continue
		}
		out = append(out, mv)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Fold returns the case-folded form of s.
func Fold(s string) string {
	if s == "" {
		return s
	}
	return cases.Fold().String(s)
}
