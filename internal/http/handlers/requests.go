package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-movies-backend/internal/domain"
	"github.com/tbourn/go-movies-backend/internal/sysutil"
)

func init() {
	// Report json/form field names in validation errors instead of Go names.
	if v, isValidator := binding.Validator.Engine().(*validator.Validate); isValidator {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	}
}

//
// DTOs
//

// CreateMovieRequest is the JSON payload for POST /api/movies/.
// id and created_at are optional; when present they are stored as given.
type CreateMovieRequest struct {
	ID          string     `json:"id"           example:"7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab"`
	Title       *string    `json:"title"        binding:"required" example:"Inception"`
	Genre       *string    `json:"genre"        binding:"required" example:"Sci-Fi"`
	Year        *int       `json:"year"         binding:"required" example:"2010"`
	Rating      *int       `json:"rating"       binding:"required" example:"9"`
	IsAvailable *bool      `json:"is_available" example:"true"`
	CreatedAt   *time.Time `json:"created_at"   example:"2024-05-01T12:00:00Z"`
}

// ReplaceMovieRequest is the JSON payload for PUT /movies/{id}. Identity
// fields in the body are ignored.
type ReplaceMovieRequest struct {
	Title       *string `json:"title"        binding:"required" example:"Inception"`
	Genre       *string `json:"genre"        binding:"required" example:"Thriller"`
	Year        *int    `json:"year"         binding:"required" example:"2010"`
	Rating      *int    `json:"rating"       binding:"required" example:"8"`
	IsAvailable *bool   `json:"is_available" example:"true"`
}

// PatchMovieRequest is the payload for PATCH /movies/{id}. Every field is
// optional; it is read from the query string and from the JSON body.
type PatchMovieRequest struct {
	Title       *string `json:"title"        form:"title"        example:"Inception"`
	Genre       *string `json:"genre"        form:"genre"        example:"Sci-Fi"`
	Year        *int    `json:"year"         form:"year"         example:"2010"`
	Rating      *int    `json:"rating"       form:"rating"       example:"10"`
	IsAvailable *bool   `json:"is_available" form:"is_available" example:"false"`
}

// SearchQuery holds the query parameters of GET /movies/search/. Limit stays
// a string so that the empty value an HTML form sends reads as "not given".
type SearchQuery struct {
	Query *string `form:"query" binding:"required"`
	Limit string  `form:"limit"`
}

// limit returns the requested limit, 0 when absent, and false when the value
// is not a positive integer.
func (q SearchQuery) limit() (int, bool) {
	v := strings.TrimSpace(q.Limit)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// MovieForm is the urlencoded body of the create and edit pages.
// is_available is an HTML checkbox: absent means false.
type MovieForm struct {
	Title       *string `form:"title"  binding:"required"`
	Genre       *string `form:"genre"  binding:"required"`
	Year        *int    `form:"year"   binding:"required"`
	Rating      *int    `form:"rating" binding:"required"`
	IsAvailable string  `form:"is_available"`
}

func (r CreateMovieRequest) fields() domain.MovieFields {
	return domain.MovieFields{
		Title:       *r.Title,
		Genre:       *r.Genre,
		Year:        *r.Year,
		Rating:      *r.Rating,
		IsAvailable: boolOrTrue(r.IsAvailable),
	}
}

func (r ReplaceMovieRequest) fields() domain.MovieFields {
	return domain.MovieFields{
		Title:       *r.Title,
		Genre:       *r.Genre,
		Year:        *r.Year,
		Rating:      *r.Rating,
		IsAvailable: boolOrTrue(r.IsAvailable),
	}
}

func (r PatchMovieRequest) patch() domain.MoviePatch {
	return domain.MoviePatch{
		Title:       r.Title,
		Genre:       r.Genre,
		Year:        r.Year,
		Rating:      r.Rating,
		IsAvailable: r.IsAvailable,
	}
}

// merge overlays the fields supplied in over onto r.
func (r PatchMovieRequest) merge(over PatchMovieRequest) PatchMovieRequest {
	if over.Title != nil {
		r.Title = over.Title
	}
	if over.Genre != nil {
		r.Genre = over.Genre
	}
	if over.Year != nil {
		r.Year = over.Year
	}
	if over.Rating != nil {
		r.Rating = over.Rating
	}
	if over.IsAvailable != nil {
		r.IsAvailable = over.IsAvailable
	}
	return r
}

func (f MovieForm) fields() domain.MovieFields {
	return domain.MovieFields{
		Title:       *f.Title,
		Genre:       *f.Genre,
		Year:        *f.Year,
		Rating:      *f.Rating,
		IsAvailable: sysutil.IsTruthy(f.IsAvailable),
	}
}

func boolOrTrue(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}

//
// Binding
//

// bindJSON decodes a required JSON body into dst. It writes the error
// response itself and reports whether the handler may continue.
//
//   - syntax errors: 400 bad_request
//   - body over the size cap: 413 payload_too_large
//   - missing body, wrong types, failed constraints: 422 validation_failed
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "request body is required")
		return false
	}
	failBinding(c, err)
	return false
}

// bindOptionalJSON is bindJSON for bodies that may be empty.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	failBinding(c, err)
	return false
}

// bindQuery binds query parameters; any failure is a 422.
func bindQuery(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, validationDetail(err))
		return false
	}
	return true
}

// bindForm binds an urlencoded or multipart body; any failure is a 422.
func bindForm(c *gin.Context, dst any) bool {
	b := binding.Form
	if strings.HasPrefix(c.ContentType(), binding.MIMEMultipartPOSTForm) {
		b = binding.FormMultipart
	}
	if err := c.ShouldBindWith(dst, b); err != nil {
		if tooLarge(err) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
			return false
		}
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, validationDetail(err))
		return false
	}
	return true
}

func failBinding(c *gin.Context, err error) {
	if tooLarge(err) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
		return
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) || errors.Is(err, io.ErrUnexpectedEOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, validationDetail(err))
}

// validationDetail renders a binding error as a short, client-safe sentence.
func validationDetail(err error) string {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		msgs := make([]string, 0, len(ves))
		for _, fe := range ves {
			switch fe.Tag() {
			case "required":
				msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
			default:
				msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
			}
		}
		return strings.Join(msgs, "; ")
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return fmt.Sprintf("%s must be of type %s", te.Field, te.Type.String())
	}
	return "invalid input: " + err.Error()
}

// tooLarge reports whether err comes from the body size limiter.
func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
