package middleware

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessLog(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "OK")
	})
	t.Run("OK", func(t *testing.T) {
		t.Parallel()

		buf := new(bytes.Buffer)
		logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		AccessLog(handler, logger).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Equal(t, "OK", w.Body.String())
		assert.Contains(t, buf.String(), "method=GET")
		assert.Contains(t, buf.String(), "status=200")
	})
	t.Run("Not found", func(t *testing.T) {
		t.Parallel()

		buf := new(bytes.Buffer)
		logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		req := httptest.NewRequest("GET", "/missing", nil)
		w := httptest.NewRecorder()
		AccessLog(handler, logger).ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
		assert.Contains(t, buf.String(), "path=/missing")
		assert.Contains(t, buf.String(), "status=404")
	})
}

func TestCORS(t *testing.T) {
	t.Parallel()

	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	}))
	t.Run("Any origin", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Origin", "http://192.168.1.20:8080")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
	t.Run("Preflight DELETE", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("OPTIONS", "/", nil)
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Access-Control-Request-Method", "DELETE")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)
		assert.Equal(t, "DELETE", w.Header().Get("Access-Control-Allow-Methods"))
	})
	t.Run("No origin", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}
