package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxQueryLogLength = 2048

// AccessLogOptions tunes AccessLog.
type AccessLogOptions struct {
	// MaskHeaders are masked in addition to Authorization, Cookie and
	// Set-Cookie. Case-insensitive.
	MaskHeaders []string

	// SkipPaths are exact request paths that produce no access line when
	// they succeed, e.g. scrape and probe endpoints.
	SkipPaths []string

	// SlowThreshold raises successful requests slower than this to warn.
	// Zero disables it.
	SlowThreshold time.Duration
}

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
)

// Redact replaces email addresses and phone numbers in s with markers.
// UUIDs are kept intact: they are movie and request ids, not personal data.
func Redact(s string) string {
	if s == "" {
		return s
	}
	// Shield UUID digit groups from the phone pattern.
	ids := uuidRE.FindAllString(s, -1)
	if len(ids) > 0 {
		s = uuidRE.ReplaceAllString(s, "\x00")
	}
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	for _, id := range ids {
		s = strings.Replace(s, "\x00", id, 1)
	}
	return s
}

// AccessLog writes one structured line per request and attaches a
// request-scoped logger for handlers (see LoggerFrom). Bodies are never
// logged; the query string and header values pass through Redact, and
// credential headers are masked entirely.
//
// Level: error for 5xx or collected gin errors, warn for 4xx and slow
// requests, info otherwise.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		rid := RequestIDFrom(c)
		if rid == "" {
			rid = c.GetHeader(HeaderRequestID)
		}

		fields := log.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", route)
		if id := c.Param("id"); id != "" {
			fields = fields.Str("movie_id", truncate(id, maxRequestIDLength))
		}
		l := fields.Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		if _, ok := skip[c.Request.URL.Path]; ok && status < 400 {
			return
		}
		latency := time.Since(start)

		headers := zerolog.Dict()
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers.Str(k, "[REDACTED]")
				continue
			}
			headers.Str(k, Redact(strings.Join(vv, ", ")))
		}

		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		case opts.SlowThreshold > 0 && latency > opts.SlowThreshold:
			ev = l.Warn().Bool("slow", true)
		default:
			ev = l.Info()
		}
		ev.Str("query", truncate(Redact(c.Request.URL.RawQuery), maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", latency).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", max(c.Writer.Size(), 0)).
			Dict("headers", headers).
			Msg("request")
	}
}
