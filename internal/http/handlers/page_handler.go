// HTML page handlers.
//
// These render the server-side catalogue pages and accept urlencoded form
// posts. Every successful mutation redirects back to the listing with
// 303 See Other so a browser refresh never re-submits the form.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-movies-backend/internal/services"
)

// Index renders the listing page.
func (h *Handlers) Index(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	c.HTML(http.StatusOK, "index.html", gin.H{"Movies": items})
}

// CreateForm renders the empty create form.
func (h *Handlers) CreateForm(c *gin.Context) {
	c.HTML(http.StatusOK, "create.html", nil)
}

// CreateFromForm stores the posted movie and redirects to the listing.
func (h *Handlers) CreateFromForm(c *gin.Context) {
	var f MovieForm
	if !bindForm(c, &f) {
		return
	}
	if _, err := h.svc.Create(c.Request.Context(), services.CreateInput{MovieFields: f.fields()}); err != nil {
		failService(c, err)
		return
	}
	seeOther(c, "/")
}

// EditForm renders the edit form pre-filled with the movie.
func (h *Handlers) EditForm(c *gin.Context) {
	m, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	c.HTML(http.StatusOK, "edit.html", gin.H{"Movie": m})
}

// UpdateFromForm overwrites the movie with the posted fields and redirects.
func (h *Handlers) UpdateFromForm(c *gin.Context) {
	var f MovieForm
	if !bindForm(c, &f) {
		return
	}
	if _, err := h.svc.Replace(c.Request.Context(), c.Param("id"), f.fields()); err != nil {
		failService(c, err)
		return
	}
	seeOther(c, "/")
}

// DeleteFromLink removes the movie and redirects. A missing movie is not an
// error here: the link may be stale.
func (h *Handlers) DeleteFromLink(c *gin.Context) {
	err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil && !errors.Is(err, services.ErrMovieNotFound) {
		failService(c, err)
		return
	}
	seeOther(c, "/")
}
