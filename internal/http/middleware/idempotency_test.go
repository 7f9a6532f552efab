package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type lookupCall struct {
	scope, key string
}

type fakeLookup struct {
	hit   bool
	err   error
	calls []lookupCall
}

func (f *fakeLookup) fn(_ context.Context, scope, key string, _ time.Time) (bool, error) {
	f.calls = append(f.calls, lookupCall{scope, key})
	return f.hit, f.err
}

// idemRouter records what the handler observed on each request.
type observed struct {
	key    string
	hasKey bool
	replay bool
	bypass bool
}

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup, seen *observed) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), IdempotencyValidator(opts, lookup))
	h := func(c *gin.Context) {
		seen.key, seen.hasKey = GetIdempotencyKey(c)
		seen.replay = IsReplay(c)
		seen.bypass = IsRateBypass(c)
		c.Status(http.StatusNoContent)
	}
	r.POST("/api/movies/", h)
	r.PUT("/movies/:id", h)
	return r
}

func idemRequest(method, path, key string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	return req
}

func TestContextHelpers_Defaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("key = %q, %v", k, ok)
	}
	if IsReplay(c) || IsRateBypass(c) {
		t.Fatal("flags must default to false")
	}
	c.Set(ctxKeyIdemKey, 123)
	c.Set(ctxKeyIdemReplay, "yes")
	c.Set(ctxKeyRateBypass, 1)
	if _, ok := GetIdempotencyKey(c); ok || IsReplay(c) || IsRateBypass(c) {
		t.Fatal("wrongly typed values must read as unset")
	}
}

func TestIdempotencyScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var scope string
	r := gin.New()
	r.POST("/api/movies/", func(c *gin.Context) { scope = IdempotencyScope(c) })
	r.NoRoute(func(c *gin.Context) { scope = IdempotencyScope(c) })

	serve(r, httptest.NewRequest(http.MethodPost, "/api/movies/", nil))
	if scope != "/api/movies/" {
		t.Fatalf("routed scope = %q", scope)
	}
	serve(r, httptest.NewRequest(http.MethodPost, "/nowhere", nil))
	if scope != "/nowhere" {
		t.Fatalf("unrouted scope = %q", scope)
	}
}

func TestIdempotencyValidator_NoHeader(t *testing.T) {
	f := &fakeLookup{hit: true}
	var seen observed
	w := serve(idemRouter(IdempotencyOptions{}, f.fn, &seen), idemRequest(http.MethodPost, "/api/movies/", ""))

	if w.Code != http.StatusNoContent || seen.hasKey || seen.replay {
		t.Fatalf("code=%d seen=%+v", w.Code, seen)
	}
	if len(f.calls) != 0 {
		t.Fatalf("lookup called without a key: %v", f.calls)
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	cases := map[string]struct {
		opts IdempotencyOptions
		key  string
	}{
		"space":            {IdempotencyOptions{}, "bad key"},
		"slash":            {IdempotencyOptions{}, "a/b"},
		"too long default": {IdempotencyOptions{}, strings.Repeat("k", 201)},
		"too long custom":  {IdempotencyOptions{MaxLen: 4}, "abcde"},
		"custom pattern":   {IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := &fakeLookup{}
			var seen observed
			req := idemRequest(http.MethodPost, "/api/movies/", tc.key)
			req.Header.Set(HeaderRequestID, "rid-idem")
			w := serve(idemRouter(tc.opts, f.fn, &seen), req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["code"] != "bad_request" || body["detail"] != "invalid Idempotency-Key" || body["request_id"] != "rid-idem" {
				t.Fatalf("body = %v", body)
			}
			if len(f.calls) != 0 {
				t.Fatal("lookup must not run for a rejected key")
			}
		})
	}
}

func TestIdempotencyValidator_AcceptsBoundaryKey(t *testing.T) {
	var seen observed
	key := strings.Repeat("k", 200)
	w := serve(idemRouter(IdempotencyOptions{}, nil, &seen), idemRequest(http.MethodPost, "/api/movies/", key))
	if w.Code != http.StatusNoContent || seen.key != key || seen.replay {
		t.Fatalf("code=%d seen=%+v", w.Code, seen)
	}
}

func TestIdempotencyValidator_LookupOutcomes(t *testing.T) {
	cases := []struct {
		name       string
		hit        bool
		err        error
		wantReplay bool
	}{
		{"miss", false, nil, false},
		{"hit", true, nil, true},
		{"error counts as miss", true, errors.New("db down"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			captureLogger(t)
			f := &fakeLookup{hit: tc.hit, err: tc.err}
			var seen observed
			before := testutil.ToFloat64(idempotentReplays)

			w := serve(idemRouter(IdempotencyOptions{}, f.fn, &seen), idemRequest(http.MethodPost, "/api/movies/", "retry-7"))
			if w.Code != http.StatusNoContent {
				t.Fatalf("status = %d", w.Code)
			}
			if len(f.calls) != 1 || f.calls[0] != (lookupCall{"/api/movies/", "retry-7"}) {
				t.Fatalf("calls = %v", f.calls)
			}
			if seen.key != "retry-7" || seen.replay != tc.wantReplay || seen.bypass != tc.wantReplay {
				t.Fatalf("seen = %+v", seen)
			}
			wantCount := before
			if tc.wantReplay {
				wantCount++
			}
			if got := testutil.ToFloat64(idempotentReplays); got != wantCount {
				t.Fatalf("replay counter = %v; want %v", got, wantCount)
			}
		})
	}
}

func TestIdempotencyValidator_Methods(t *testing.T) {
	f := &fakeLookup{hit: true}
	var seen observed

	// PUT is not looked up by default but the key is still exposed.
	w := serve(idemRouter(IdempotencyOptions{}, f.fn, &seen), idemRequest(http.MethodPut, "/movies/m1", "put-1"))
	if w.Code != http.StatusNoContent || len(f.calls) != 0 || seen.key != "put-1" || seen.replay {
		t.Fatalf("default methods: calls=%v seen=%+v", f.calls, seen)
	}

	r := idemRouter(IdempotencyOptions{Methods: []string{http.MethodPut}}, f.fn, &seen)
	serve(r, idemRequest(http.MethodPut, "/movies/m1", "put-1"))
	if len(f.calls) != 1 || f.calls[0].scope != "/movies/:id" || !seen.replay {
		t.Fatalf("PUT lookup: calls=%v seen=%+v", f.calls, seen)
	}
	serve(r, idemRequest(http.MethodPost, "/api/movies/", "post-1"))
	if len(f.calls) != 1 {
		t.Fatalf("POST should not be looked up when only PUT is configured: %v", f.calls)
	}
}
