// Movie JSON API handlers.
//
// This file exposes REST endpoints for movie resources:
//   - POST   /api/movies/        (create, Idempotency-Key aware)
//   - GET    /movies/            (list)
//   - GET    /movies/search/     (title search)
//   - GET    /movies/{id}        (get)
//   - PUT    /movies/{id}        (full update)
//   - PATCH  /movies/{id}        (partial update, JSON body and/or query)
//   - DELETE /movies/{id}        (delete)
//   - GET    /health
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// create with the same key exists on this route, the handler returns the
// originally created movie and sets `Idempotency-Replayed: true`.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-movies-backend/internal/domain"
	"github.com/tbourn/go-movies-backend/internal/http/middleware"
	"github.com/tbourn/go-movies-backend/internal/services"
)

// HeaderIdempotencyReplayed marks a response served from a stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Movies int64  `json:"movies" example:"3"`
}

// CreateMovie godoc
// @ID          createMovie
// @Summary     Create a movie
// @Description Stores a movie and returns it. id and created_at are generated when omitted.
// @Description Supports idempotency via the Idempotency-Key header (same key → same movie).
// @Tags        Movies
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateMovieRequest  true  "Movie payload"
//
// @Success     200  {object}  domain.Movie
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous identical request"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed JSON or Idempotency-Key"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/movies/ [post]
func (h *Handlers) CreateMovie(c *gin.Context) {
	ctx := c.Request.Context()

	// Replay path: read the validated key, falling back to the raw header.
	key, _ := middleware.GetIdempotencyKey(c)
	if key == "" {
		key = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	scope := middleware.IdempotencyScope(c)
	if key != "" && h.idem != nil {
		if m := h.replay(c, scope, key); m != nil {
			c.Header(HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, m)
			return
		}
	}

	var req CreateMovieRequest
	if !bindJSON(c, &req) {
		return
	}
	in := services.CreateInput{ID: strings.TrimSpace(req.ID), MovieFields: req.fields()}
	if req.CreatedAt != nil {
		in.CreatedAt = *req.CreatedAt
	}

	m, err := h.svc.Create(ctx, in)
	if err != nil {
		failService(c, err)
		return
	}

	// Store path: best effort.
	if key != "" && h.idem != nil {
		if err := h.idem.Remember(ctx, scope, key, m.ID, http.StatusOK); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("movie_id", m.ID).Msg("idempotency store failed")
		}
	}
	ok(c, http.StatusOK, m)
}

// replay returns the movie recorded for (scope, key), or nil when there is
// nothing to replay. A recorded movie that has since been deleted is not
// replayed; the create that follows rebinds the key.
func (h *Handlers) replay(c *gin.Context, scope, key string) *domain.Movie {
	ctx := c.Request.Context()
	now := time.Now().UTC()
	rec, err := h.idem.Lookup(ctx, scope, key, now)
	if err != nil || rec == nil || rec.Expired(now) {
		if middleware.IsReplay(c) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency key matched but nothing to replay")
		}
		return nil
	}
	m, err := h.svc.Get(ctx, rec.MovieID)
	if err != nil {
		return nil
	}
	return m
}

// ListMovies godoc
// @ID          listMovies
// @Summary     List movies
// @Description Returns every stored movie in insertion order.
// @Tags        Movies
// @Produce     json
// @Success     200  {array}   domain.Movie
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /movies/ [get]
func (h *Handlers) ListMovies(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// GetMovie godoc
// @ID          getMovie
// @Summary     Get a movie
// @Tags        Movies
// @Produce     json
// @Param       id   path      string  true  "Movie ID"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Success     200  {object}  domain.Movie
// @Failure     404  {object}  handlers.ErrorResponse  "Movie not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /movies/{id} [get]
func (h *Handlers) GetMovie(c *gin.Context) {
	m, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// ReplaceMovie godoc
// @ID          replaceMovie
// @Summary     Replace a movie
// @Description Overwrites title, genre, year, rating and is_available. id and created_at are preserved.
// @Tags        Movies
// @Accept      json
// @Produce     json
// @Param       id    path      string                        true  "Movie ID"
// @Param       body  body      handlers.ReplaceMovieRequest  true  "Full movie payload"
// @Success     200   {object}  domain.Movie
// @Failure     400   {object}  handlers.ErrorResponse  "Malformed JSON"
// @Failure     404   {object}  handlers.ErrorResponse  "Movie not found"
// @Failure     422   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /movies/{id} [put]
func (h *Handlers) ReplaceMovie(c *gin.Context) {
	var req ReplaceMovieRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.svc.Replace(c.Request.Context(), c.Param("id"), req.fields())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// PatchMovie godoc
// @ID          patchMovie
// @Summary     Update some fields of a movie
// @Description Fields may be sent as JSON and/or as query parameters; the body wins when both set a field.
// @Description JSON null leaves a field unchanged. An empty patch returns the movie as is.
// @Tags        Movies
// @Accept      json
// @Produce     json
// @Param       id            path      string  true   "Movie ID"
// @Param       title         query     string  false  "New title"
// @Param       genre         query     string  false  "New genre"
// @Param       year          query     int     false  "New year"
// @Param       rating        query     int     false  "New rating"
// @Param       is_available  query     bool    false  "New availability"
// @Param       body          body      handlers.PatchMovieRequest  false  "Partial movie payload"
// @Success     200           {object}  domain.Movie
// @Failure     400           {object}  handlers.ErrorResponse  "Malformed JSON"
// @Failure     404           {object}  handlers.ErrorResponse  "Movie not found"
// @Failure     422           {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500           {object}  handlers.ErrorResponse  "Internal error"
// @Router      /movies/{id} [patch]
func (h *Handlers) PatchMovie(c *gin.Context) {
	var fromQuery, fromBody PatchMovieRequest
	if !bindQuery(c, &fromQuery) {
		return
	}
	if !bindOptionalJSON(c, &fromBody) {
		return
	}
	req := fromQuery.merge(fromBody)

	m, err := h.svc.Patch(c.Request.Context(), c.Param("id"), req.patch())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// DeleteMovie godoc
// @ID          deleteMovie
// @Summary     Delete a movie
// @Tags        Movies
// @Produce     json
// @Param       id   path      string  true  "Movie ID"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Movie not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /movies/{id} [delete]
func (h *Handlers) DeleteMovie(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: detailMovieDeleted})
}

// SearchMovies godoc
// @ID          searchMovies
// @Summary     Search movies by title
// @Description Case-insensitive substring match on title, in insertion order. An empty query matches every movie.
// @Tags        Movies
// @Produce     json
// @Param       query  query     string  true   "Title fragment"  example(matrix)
// @Param       limit  query     int     false  "Maximum results"  minimum(1) default(10)
// @Success     200    {array}   domain.Movie
// @Failure     422    {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500    {object}  handlers.ErrorResponse  "Internal error"
// @Router      /movies/search/ [get]
func (h *Handlers) SearchMovies(c *gin.Context) {
	var q SearchQuery
	if !bindQuery(c, &q) {
		return
	}
	limit, valid := q.limit()
	if !valid {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "limit must be a positive integer")
		return
	}

	items, err := h.svc.Search(c.Request.Context(), *q.Query, limit)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// Health godoc
// @ID          health
// @Summary     Liveness and store size
// @Tags        Ops
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	n, err := h.svc.Count(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, HealthResponse{Status: "ok", Movies: n})
}
