package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/niktheblak/esp32-sensor-api/pkg/middleware"
	"github.com/niktheblak/esp32-sensor-api/pkg/state"
)

// New returns the HTTP handler serving the latest reading held in holder.
func New(holder *state.Holder, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", rootHandler(logger))
	mux.Handle("GET /iot", latestHandler(holder, logger))
	return middleware.AccessLog(middleware.CORS(mux), logger)
}
