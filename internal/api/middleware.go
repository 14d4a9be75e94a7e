package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
	"github.com/Gateworks/gst-gateworks-apps/internal/metrics"
)

// corsPolicy is the header set sent on every response. The API is meant
// for dashboards on the local network, so any origin is allowed.
type corsPolicy [][2]string

func newCORSPolicy(maxAge time.Duration) corsPolicy {
	return corsPolicy{
		{"Access-Control-Allow-Origin", "*"},
		{"Access-Control-Allow-Methods", strings.Join([]string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions,
		}, ", ")},
		{"Access-Control-Allow-Headers", "Content-Type, Accept, Origin"},
		{"Access-Control-Max-Age", strconv.Itoa(int(maxAge.Seconds()))},
	}
}

func (c corsPolicy) apply(set func(key, value string)) {
	for _, h := range c {
		set(h[0], h[1])
	}
}

// wrap answers OPTIONS for every path before the mux sees it. Huma only
// sees requests that match a registered operation, and an OPTIONS pattern
// on the mux would turn unknown paths into 405s.
func (c corsPolicy) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		c.apply(w.Header().Set)
		w.WriteHeader(http.StatusNoContent)
	})
}

func (c corsPolicy) middleware(ctx huma.Context, next func(huma.Context)) {
	c.apply(ctx.SetHeader)
	next(ctx)
}

// requestLog logs each request once it completes, at a level picked from
// the status, and records its latency per operation.
func requestLog(logger logging.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		next(ctx)
		elapsed := time.Since(start)

		status := ctx.Status()
		if status == 0 {
			status = http.StatusOK
		}
		op := "unknown"
		if o := ctx.Operation(); o != nil {
			op = o.OperationID
		}
		metrics.ObserveHTTPRequest(op, status, elapsed)

		args := []any{
			"method", ctx.Method(),
			"path", ctx.URL().Path,
			"status", status,
			"duration", elapsed,
			"remote_addr", ctx.RemoteAddr(),
		}
		if q := ctx.URL().RawQuery; q != "" {
			args = append(args, "query", q)
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request failed", args...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request rejected", args...)
		case ctx.Method() == http.MethodGet:
			// Dashboards poll; keep reads out of the info stream.
			logger.Debug("HTTP request", args...)
		default:
			logger.Info("HTTP request", args...)
		}
	}
}

