package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Logger writes one access line per request and puts a request-scoped logger
// into the context for zerolog.Ctx.
func Logger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := l.With().Str("request_id", RequestIDFromContext(r.Context())).Logger()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r.WithContext(reqLog.WithContext(r.Context())))

			evt := reqLog.Info()
			if rw.status >= http.StatusInternalServerError {
				evt = reqLog.Error()
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Int("bytes", rw.bytes).
				Str("remote_ip", ClientIP(r)).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
