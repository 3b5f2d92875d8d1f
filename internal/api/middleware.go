package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/emrlift/emrlift/internal/engine"
	"github.com/emrlift/emrlift/internal/errdefs"
)

// jsonResponse writes a JSON response.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("writing json response", "error", err)
	}
}

// errorResponse writes an error JSON response.
func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, ErrorResponse{Error: message})
}

// failure maps an operation error onto an HTTP status.
func failure(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	jsonResponse(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func statusFor(err error) (int, string) {
	switch {
	case errdefs.IsConfig(err):
		return http.StatusBadRequest, "config"
	case errdefs.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errdefs.IsPolicy(err):
		return http.StatusConflict, "policy"
	case errors.Is(err, engine.ErrBusy):
		return http.StatusConflict, "busy"
	case errdefs.IsTimeout(err):
		return http.StatusGatewayTimeout, "timeout"
	case errdefs.IsProvider(err):
		return http.StatusBadGateway, "provider"
	default:
		return http.StatusInternalServerError, ""
	}
}

// statusRecorder keeps the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// requestLogger is middleware that logs HTTP requests.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
