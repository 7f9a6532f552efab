// Package services defines the business logic of the movie catalogue.
// This file centralizes the service-level error values so that handlers can
// map them to HTTP results consistently.
package services

import "errors"

var (
	// ErrMovieNotFound indicates that no movie exists with the requested id.
	ErrMovieNotFound = errors.New("movie not found")

	// ErrEmptyTitle is returned when a title is blank after trimming.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrInvalidLimit is returned when a search limit is negative.
	ErrInvalidLimit = errors.New("limit must be a positive integer")
)
