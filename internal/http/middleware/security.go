package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultContentSecurityPolicy fits the catalogue pages: same-origin styles,
// forms posting back to the app, no framing and no scripts.
const DefaultContentSecurityPolicy = "default-src 'self'; script-src 'none'; style-src 'self'; form-action 'self'; frame-ancestors 'none'; base-uri 'self'"

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS bool          // only honoured for HTTPS requests
	HSTSMaxAge time.Duration // 180 days when zero

	// ContentSecurityPolicy is sent unless empty or the path falls under
	// CSPExemptPrefixes (the Swagger UI needs inline scripts).
	ContentSecurityPolicy string
	CSPExemptPrefixes     []string

	// NoStorePrefixes mark responses that must not be cached: catalogue
	// data changes on every write. "/" matches every path.
	NoStorePrefixes []string

	// CacheablePrefixes get Cache-Control: public with StaticMaxAge and win
	// over NoStorePrefixes.
	CacheablePrefixes []string
	StaticMaxAge      time.Duration
}

// SecurityHeaders sets the hardening headers on every response:
// X-Content-Type-Options, X-Frame-Options, Referrer-Policy and
// Permissions-Policy always; HSTS, CSP and Cache-Control as configured.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains"
	static := "public, max-age=" + strconv.Itoa(int(opt.StaticMaxAge.Seconds()))

	return func(c *gin.Context) {
		h := c.Writer.Header()
		path := c.Request.URL.Path

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if opt.ContentSecurityPolicy != "" && !hasAnyPrefix(path, opt.CSPExemptPrefixes) {
			h.Set("Content-Security-Policy", opt.ContentSecurityPolicy)
		}

		switch {
		case hasAnyPrefix(path, opt.CacheablePrefixes):
			h.Set("Cache-Control", static)
		case hasAnyPrefix(path, opt.NoStorePrefixes):
			h.Set("Cache-Control", "no-store")
		}

		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS, directly or through
// a proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
