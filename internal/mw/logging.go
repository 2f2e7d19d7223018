package mw

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/TwigBush/ordergate/internal/httpx"
	"github.com/TwigBush/ordergate/internal/trace"
)

type LogOpts struct {
	SkipPaths     []string
	RedactHeaders []string
	// log only every Nth request on paths with SamplePrefix
	SamplePrefix string
	SampleEvery  int
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions
}

func Logger(opts LogOpts) func(http.Handler) http.Handler {
	if opts.SampleEvery <= 0 {
		opts.SampleEvery = 1
	}
	skip := map[string]bool{}
	for _, p := range opts.SkipPaths {
		skip[p] = true
	}
	redact := map[string]bool{"authorization": true, "cookie": true}
	for _, h := range opts.RedactHeaders {
		redact[strings.ToLower(h)] = true
	}
	var sampled atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPreflight(r) || skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if opts.SamplePrefix != "" && opts.SampleEvery > 1 && strings.HasPrefix(r.URL.Path, opts.SamplePrefix) {
				if sampled.Add(1)%uint64(opts.SampleEvery) != 0 {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := time.Now()
			rec := httpx.NewRecorder(w)
			next.ServeHTTP(rec, r)
			dur := time.Since(start)

			slog.Info("req",
				"trace", trace.From(r.Context()),
				"m", r.Method,
				"path", r.URL.Path,
				"status", rec.Status,
				"ms", dur.Milliseconds(),
				"bytes", rec.Bytes,
			)

			if rec.Status >= 400 {
				h := map[string]string{}
				for k, vv := range r.Header {
					if len(vv) == 0 {
						continue
					}
					vl := vv[0]
					if redact[strings.ToLower(k)] || strings.HasPrefix(strings.ToLower(k), "x-api-key") {
						vl = "***redacted***"
					}
					h[k] = vl
				}
				slog.Error("req_detail",
					"trace", trace.From(r.Context()),
					"m", r.Method, "path", r.URL.Path,
					"status", rec.Status, "ms", dur.Milliseconds(),
					"headers", h,
				)
			}
		})
	}
}
