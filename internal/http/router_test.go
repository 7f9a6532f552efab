package httpapi

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-movies-backend/internal/config"
	"github.com/tbourn/go-movies-backend/internal/domain"
	"github.com/tbourn/go-movies-backend/internal/http/middleware"
	"github.com/tbourn/go-movies-backend/internal/repo"
	"github.com/tbourn/go-movies-backend/internal/services"
)

// newTestDB opens a private in-memory database per test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repo.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func baseConfig() config.Config {
	return config.Config{
		RateRPS:            100,
		RateBurst:          100,
		MaxBodyBytes:       1 << 20,
		SearchDefaultLimit: 10,
		CORS:               config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:           config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:               config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newEngine(t *testing.T, store services.MovieRepo, cfg config.Config) (*gin.Engine, *repo.IdempotencyStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	idem := repo.NewIdempotencyStore(newTestDB(t), time.Hour)
	RegisterRoutes(r, store, idem, cfg)
	return r, idem
}

func serve(r http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newEngine(t, repo.NewMemoryStore(), baseConfig())

	// /health works
	w := serve(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("GET /health = %d %s", w.Code, w.Body.String())
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = serve(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404 envelope
	w = serve(r, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("GET /nope expected 404, got %d %s", w.Code, w.Body.String())
	}

	// NoMethod → 405 (POST /health)
	w = serve(r, http.MethodPost, "/health", "")
	if w.Code != http.StatusMethodNotAllowed || !strings.Contains(w.Body.String(), `"code":"method_not_allowed"`) {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := baseConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newEngine(t, repo.NewMemoryStore(), cfg)

	w := serve(r, http.MethodGet, "/health", "", "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_RouteTable(t *testing.T) {
	r, _ := newEngine(t, repo.NewMemoryStore(), baseConfig())

	want := map[string]bool{
		"GET /":                 false,
		"GET /create":           false,
		"POST /create":          false,
		"GET /edit/:id":         false,
		"POST /edit/:id":        false,
		"GET /delete/:id":       false,
		"POST /api/movies/":     false,
		"GET /movies/":          false,
		"GET /movies/search/":   false,
		"GET /movies/:id":       false,
		"PUT /movies/:id":       false,
		"PATCH /movies/:id":     false,
		"DELETE /movies/:id":    false,
		"GET /health":           false,
		"GET /metrics":          false,
		"GET /static/*filepath": false,
	}
	for _, ri := range r.Routes() {
		k := ri.Method + " " + ri.Path
		if _, ok := want[k]; ok {
			want[k] = true
		}
		if strings.HasPrefix(ri.Path, "/swagger/") {
			t.Fatalf("swagger mounted while disabled")
		}
	}
	for k, seen := range want {
		if !seen {
			t.Fatalf("route %s not registered", k)
		}
	}
}

func TestRegisterRoutes_EndToEnd_SQLiteStore(t *testing.T) {
	cfg := baseConfig()
	cfg.SearchDefaultLimit = 3
	r, _ := newEngine(t, repo.NewSQLStore(newTestDB(t)), cfg)

	for i := 1; i <= 5; i++ {
		body := fmt.Sprintf(`{"title":"Toy Story %d","genre":"Animation","year":1995,"rating":8}`, i)
		if w := serve(r, http.MethodPost, "/api/movies/", body); w.Code != http.StatusOK {
			t.Fatalf("create %d: %d %s", i, w.Code, w.Body.String())
		}
	}

	// Configured default limit applies when limit is omitted.
	w := serve(r, http.MethodGet, "/movies/search/?query=toy", "")
	var ms []domain.Movie
	if err := json.Unmarshal(w.Body.Bytes(), &ms); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(ms) != 3 || ms[0].Title != "Toy Story 1" {
		t.Fatalf("unexpected search result: %+v", ms)
	}

	w = serve(r, http.MethodGet, "/health", "")
	if !strings.Contains(w.Body.String(), `"movies":5`) {
		t.Fatalf("health count: %s", w.Body.String())
	}
}

func TestRegisterRoutes_SearchBoxEmptyLimit(t *testing.T) {
	r, _ := newEngine(t, repo.NewMemoryStore(), baseConfig())
	serve(r, http.MethodPost, "/api/movies/", `{"title":"The Matrix","genre":"Sci-Fi","year":1999,"rating":9}`)
	serve(r, http.MethodPost, "/api/movies/", `{"title":"Heat","genre":"Crime","year":1995,"rating":8}`)

	// The listing page's form submits an empty limit when left blank.
	w := serve(r, http.MethodGet, "/movies/search/?query=matrix&limit=", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET search with blank limit = %d %s", w.Code, w.Body.String())
	}
	var ms []domain.Movie
	if err := json.Unmarshal(w.Body.Bytes(), &ms); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(ms) != 1 || ms[0].Title != "The Matrix" {
		t.Fatalf("results = %+v", ms)
	}

	if w := serve(r, http.MethodGet, "/movies/search/?query=matrix&limit=0", ""); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("limit=0 = %d; want 422", w.Code)
	}
}

func TestRegisterRoutes_IdempotentReplayBypassesRateLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, _ := newEngine(t, repo.NewMemoryStore(), cfg)

	body := `{"title":"Heat","genre":"Crime","year":1995,"rating":8}`
	first := serve(r, http.MethodPost, "/api/movies/", body, middleware.HeaderIdempotencyKey, "retry-1")
	if first.Code != http.StatusOK {
		t.Fatalf("first: %d %s", first.Code, first.Body.String())
	}

	// Bucket is empty now, but a replay is exempt.
	second := serve(r, http.MethodPost, "/api/movies/", body, middleware.HeaderIdempotencyKey, "retry-1")
	if second.Code != http.StatusOK || second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d replayed=%q", second.Code, second.Header().Get("Idempotency-Replayed"))
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay body differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}

	third := serve(r, http.MethodGet, "/movies/", "")
	if third.Code != http.StatusTooManyRequests || third.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", third.Code)
	}
}

func TestRegisterRoutes_IdempotencyLookupError_TreatedAsMiss(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t)
	idem := repo.NewIdempotencyStore(db, time.Hour)
	RegisterRoutes(r, repo.NewMemoryStore(), idem, baseConfig())

	// Force idempotency queries to fail by closing the underlying connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	w := serve(r, http.MethodPost, "/api/movies/", `{"title":"T","genre":"G","year":1,"rating":1}`, middleware.HeaderIdempotencyKey, "force-error")
	if w.Code != http.StatusOK {
		t.Fatalf("create must still succeed, got %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("lookup failure must not replay")
	}
}

func TestRegisterRoutes_NilIdempotencyStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, repo.NewMemoryStore(), nil, baseConfig())

	body := `{"title":"T","genre":"G","year":1,"rating":1}`
	a := serve(r, http.MethodPost, "/api/movies/", body, middleware.HeaderIdempotencyKey, "k")
	b := serve(r, http.MethodPost, "/api/movies/", body, middleware.HeaderIdempotencyKey, "k")
	if a.Code != http.StatusOK || b.Code != http.StatusOK || a.Body.String() == b.Body.String() {
		t.Fatalf("without a store every create is fresh: %d %d", a.Code, b.Code)
	}
}

func TestRegisterRoutes_PagesSecurityAndStatic(t *testing.T) {
	r, _ := newEngine(t, repo.NewMemoryStore(), baseConfig())

	w := serve(r, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("GET / = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("expected CSP on pages")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" || w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing hardening headers: %v", w.Header())
	}
	if rid := w.Header().Get(middleware.HeaderRequestID); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("page Cache-Control = %q", got)
	}

	w = serve(r, http.MethodGet, "/static/style.css", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/css") {
		t.Fatalf("GET /static/style.css = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if got := w.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Fatalf("static Cache-Control = %q", got)
	}
}

func TestRegisterRoutes_FormFlowRedirects(t *testing.T) {
	store := repo.NewMemoryStore()
	r, _ := newEngine(t, store, baseConfig())

	req := httptest.NewRequest(http.MethodPost, "/create", strings.NewReader("title=Up&genre=Animation&year=2009&rating=8"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("POST /create = %d %q", w.Code, w.Header().Get("Location"))
	}

	w = serve(r, http.MethodGet, "/delete/does-not-exist", "")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("GET /delete/unknown = %d", w.Code)
	}
	w = serve(r, http.MethodGet, "/edit/does-not-exist", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /edit/unknown = %d", w.Code)
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	r, _ := newEngine(t, repo.NewMemoryStore(), baseConfig())
	serve(r, http.MethodPost, "/api/movies/", `{"title":"Up","genre":"Animation","year":2009,"rating":8}`)

	w := serve(r, http.MethodGet, "/movies/", "", "Accept-Encoding", "gzip")
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", w.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	plain, _ := io.ReadAll(zr)
	if !strings.Contains(string(plain), `"title":"Up"`) {
		t.Fatalf("unexpected body: %s", plain)
	}
}

func TestRegisterRoutes_SwaggerEnabled_NoCSP(t *testing.T) {
	cfg := baseConfig()
	cfg.SwaggerEnabled = true
	r, _ := newEngine(t, repo.NewMemoryStore(), cfg)

	w := serve(r, http.MethodGet, "/swagger/doc.json", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/movies/search/") {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
	if w.Header().Get("Content-Security-Policy") != "" {
		t.Fatalf("swagger must be exempt from CSP")
	}
}

func TestRegisterRoutes_BodyTooLarge(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxBodyBytes = 32
	r, _ := newEngine(t, repo.NewMemoryStore(), cfg)

	body := `{"title":"` + strings.Repeat("x", 64) + `","genre":"G","year":1,"rating":1}`
	w := serve(r, http.MethodPost, "/api/movies/", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", w.Code, w.Body.String())
	}
}

func TestLimitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "read cut off")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	cases := []struct {
		name    string
		body    string
		chunked bool
		want    int
		inBody  string
	}{
		{"within cap", "0123456789", false, http.StatusOK, "ok"},
		{"declared length over cap", "0123456789AB", false, http.StatusRequestEntityTooLarge, `"code":"payload_too_large"`},
		{"chunked over cap", "0123456789AB", true, http.StatusRequestEntityTooLarge, "read cut off"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString(tc.body))
			if tc.chunked {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want || !strings.Contains(w.Body.String(), tc.inBody) {
				t.Fatalf("got %d %q", w.Code, w.Body.String())
			}
		})
	}
}
