package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/glycorisk/internal/metrics"
)

// requestLogger logs one line per request. It shares the status recorder
// installed by metrics.MetricsMiddleware.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := metrics.WrapResponseWriter(w)

		next.ServeHTTP(rw, r)

		status := rw.StatusCode()
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
