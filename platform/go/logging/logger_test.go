package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(Config{Component: "test", Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger, err = NewLogger(Config{Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewLogger(Config{Level: "loud"})
	require.Error(t, err)

	_, err = NewLogger(Config{Format: "xml"})
	require.Error(t, err)
}

func TestRequestLoggerStoresLoggerOnContext(t *testing.T) {
	t.Parallel()

	base := zaptest.NewLogger(t)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(base))

	var seen *zap.Logger
	r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
		logger, ok := FromContext(req.Context())
		require.True(t, ok)
		seen = logger
		w.WriteHeader(http.StatusTeapot)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusTeapot, resp.Code)
	require.NotNil(t, seen)
	require.NotSame(t, base, seen)
}

func TestFromContextOrFallsBack(t *testing.T) {
	t.Parallel()

	fallback := zaptest.NewLogger(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Same(t, fallback, FromRequest(req, fallback))
}
