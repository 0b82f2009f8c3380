package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/toolnest/toolnest/internal/model"
	"github.com/toolnest/toolnest/internal/service"
)

// UsageSink accepts usage records without blocking.
type UsageSink interface {
	Record(rec model.UsageRecord)
}

// RecordUsage returns an HTTP middleware that appends one usage record for
// every request authenticated by an API key. It must be used after
// Authenticate. Recording never affects the response.
func RecordUsage(sink UsageSink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil || identity.APIKeyID() == 0 {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			ip, _ := httprate.KeyByIP(r)
			sink.Record(model.UsageRecord{
				APIKeyID:   identity.APIKeyID(),
				Endpoint:   endpointName(r),
				Method:     r.Method,
				StatusCode: ww.status,
				Outcome:    service.OutcomeFor(ww.status, nil),
				LatencyMs:  float64(time.Since(start).Microseconds()) / 1000.0,
				IPAddress:  ip,
				UserAgent:  r.UserAgent(),
				CreatedAt:  start.UTC(),
			})
		})
	}
}

func endpointName(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
