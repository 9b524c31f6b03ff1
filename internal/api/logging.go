package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// logEvent writes one business event line. Fields are emitted in key order
// so lines for the same event diff cleanly.
func (s *Server) logEvent(ctx context.Context, event string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(fields)+2)
	attrs = append(attrs, slog.String("event", event))
	if id := middleware.GetReqID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, event, attrs...)
}

func requestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				status := ww.Status()

				requestAttrs := slog.Group("request",
					slog.String("id", middleware.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				responseAttrs := slog.Group("response",
					slog.Int("status", status),
					slog.Int("bytes", ww.BytesWritten()),
					slog.String("latency", time.Since(start).String()),
				)

				if status >= 500 {
					logger.Error("server error", requestAttrs, responseAttrs)
				} else {
					logger.Info("request completed", requestAttrs, responseAttrs)
				}
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
