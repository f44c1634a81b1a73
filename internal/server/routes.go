package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/niktheblak/esp32-sensor-api/pkg/state"
)

const runningMessage = "ESP32 sensor server is running!"

func rootHandler(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, logger, map[string]string{"message": runningMessage})
	})
}

func latestHandler(holder *state.Holder, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, max-age=0")
		writeJSON(w, r, logger, holder.Load())
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.LogAttrs(r.Context(), slog.LevelError, "Error while writing output", slog.Any("error", err))
	}
}
