package registry

import (
	"net/http"
	"strconv"
	"time"
)

// wrapRoute instruments a provider's management route with the
// per-provider request and duration metrics.
func wrapRoute(providerName string, route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sc := &statusCapture{ResponseWriter: w, status: http.StatusOK}

		route.Handler.ServeHTTP(sc, r)

		builtinAPIRequests.WithLabelValues(
			providerName, r.Method, route.Pattern, strconv.Itoa(sc.status),
		).Inc()
		builtinAPIDuration.WithLabelValues(
			providerName, r.Method, route.Pattern,
		).Observe(time.Since(start).Seconds())
	}
}

// statusCapture records the first status code written to the response.
type statusCapture struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusCapture) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusCapture) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *statusCapture) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
