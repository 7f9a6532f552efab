// Package httpapi assembles the Gin engine: the middleware chain, the JSON
// API, the HTML pages and the operational endpoints (/health, /metrics,
// /swagger).
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-movies-backend/docs"
	"github.com/tbourn/go-movies-backend/internal/config"
	"github.com/tbourn/go-movies-backend/internal/http/handlers"
	"github.com/tbourn/go-movies-backend/internal/http/middleware"
	"github.com/tbourn/go-movies-backend/internal/repo"
	"github.com/tbourn/go-movies-backend/internal/services"
	"github.com/tbourn/go-movies-backend/internal/web"
)

const (
	// swaggerPrefix is served without a Content-Security-Policy: the UI
	// relies on inline scripts.
	swaggerPrefix = "/swagger/"

	defaultMaxBody = 1 << 20
)

// Paths that bypass rate limiting and are not access-logged on success.
var opsPaths = []string{"/health", "/metrics"}

// RegisterRoutes installs the middleware chain and every route on r. store
// backs the catalogue; a nil idem turns idempotent create off.
//
// Order of the chain:
//
//	otelgin → RequestID → AccessLog → Recovery → body limit → Metrics
//	→ idempotency lookup → rate limit → CORS → gzip → security headers
//
// The idempotency lookup runs before the limiter so that a replayed create
// is never rejected with 429.
func RegisterRoutes(r *gin.Engine, store services.MovieRepo, idem *repo.IdempotencyStore, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	useChain(r, idem, cfg)

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = "/"
		r.GET(swaggerPrefix+"*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	svc := services.NewMovieService(store)
	if cfg.SearchDefaultLimit > 0 {
		svc.DefaultLimit = cfg.SearchDefaultLimit
	}
	// A typed nil would defeat the handlers' nil check.
	var idemStore handlers.IdempotencyStore
	if idem != nil {
		idemStore = idem
	}
	h := handlers.New(svc, idemStore)

	r.GET("/health", h.Health)
	registerPages(r, h)
	registerAPI(r, h)
}

func useChain(r *gin.Engine, idem *repo.IdempotencyStore, cfg config.Config) {
	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.AccessLog(middleware.AccessLogOptions{
			MaskHeaders:   []string{"X-API-Key"},
			SkipPaths:     opsPaths,
			SlowThreshold: time.Second,
		}),
		middleware.Recovery(),
		limitBody(cfg.MaxBodyBytes),
		middleware.Metrics(),
	)
	// Mounted here so scrapes are counted but never limited or compressed.
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var lookup middleware.IdempotencyLookup
	if idem != nil {
		lookup = idem.Exists
	}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, lookup))

	limiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP(), opsPaths...)
	r.Use(limiter.Handler())

	r.Use(corsChain(cfg.CORS.AllowedOrigins)...)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:            cfg.Security.EnableHSTS,
		HSTSMaxAge:            cfg.Security.HSTSMaxAge,
		ContentSecurityPolicy: middleware.DefaultContentSecurityPolicy,
		CSPExemptPrefixes:     []string{swaggerPrefix},
		NoStorePrefixes:       []string{"/"},
		CacheablePrefixes:     []string{"/static/", swaggerPrefix},
		StaticMaxAge:          time.Hour,
	}))
}

// registerPages mounts the server-rendered catalogue. Forms post back to the
// same path and redirect to / on success.
func registerPages(r *gin.Engine, h *handlers.Handlers) {
	r.SetHTMLTemplate(web.Templates())
	r.StaticFS("/static", web.StaticFS())

	r.GET("/", h.Index)
	r.GET("/create", h.CreateForm)
	r.POST("/create", h.CreateFromForm)
	r.GET("/edit/:id", h.EditForm)
	r.POST("/edit/:id", h.UpdateFromForm)
	r.GET("/delete/:id", h.DeleteFromLink)
}

func registerAPI(r *gin.Engine, h *handlers.Handlers) {
	r.POST("/api/movies/", h.CreateMovie)

	movies := r.Group("/movies")
	movies.GET("/", h.ListMovies)
	movies.GET("/search/", h.SearchMovies)
	movies.GET("/:id", h.GetMovie)
	movies.PUT("/:id", h.ReplaceMovie)
	movies.PATCH("/:id", h.PatchMovie)
	movies.DELETE("/:id", h.DeleteMovie)
}

// corsChain returns the CORS handlers. With no allowlist every origin gets
// "*", including requests without an Origin header; otherwise only listed
// origins are echoed back.
func corsChain(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{middleware.HeaderRequestID, "Content-Length", handlers.HeaderIdempotencyReplayed},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Header("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if o := c.GetHeader("Origin"); allowed[o] {
				c.Header("Access-Control-Allow-Origin", o)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies at maxBytes. A declared Content-Length over
// the cap is rejected up front with 413; chunked bodies are cut off by
// http.MaxBytesReader and surface as a read error in the handler.
func limitBody(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBody
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			handlers.Fail(c, http.StatusRequestEntityTooLarge, handlers.ErrCodePayloadTooLarge, "request body too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
