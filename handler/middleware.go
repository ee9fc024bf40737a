package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// LoggingMiddleware logs each request with its final status.
func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := wrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.RequestURI()).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// SessionMiddleware observes every inbound request so that client-identifier
// to session bindings stay current before any routing decision is made.
func (s *Service) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.router.Observe(r.URL.Query())
		next.ServeHTTP(w, r)
	})
}

func wrapResponseWriter(w http.ResponseWriter, protoMajor int) middleware.WrapResponseWriter {
	if nw, ok := w.(middleware.WrapResponseWriter); ok {
		return nw
	}
	return middleware.NewWrapResponseWriter(w, protoMajor)
}
