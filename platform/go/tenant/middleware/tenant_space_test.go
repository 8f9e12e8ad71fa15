package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/appraisal-saas/platform/go/problem"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

type fakeDirectory struct {
	schemas map[string]bool
	err     error
	calls   int
}

func (f *fakeDirectory) Exists(ctx context.Context, schema string) (bool, error) {
	f.calls++
	return f.schemas[schema], f.err
}

// serve runs one request for host through mw and returns the response plus the Space the
// inner handler observed.
func serve(t *testing.T, mw func(http.Handler) http.Handler, host string) (*httptest.ResponseRecorder, tenant.Space) {
	t.Helper()

	var seen tenant.Space
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = tenant.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/departments", nil)
	req.Host = host
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp, seen
}

func TestWithTenantSpaceResolvesHost(t *testing.T) {
	dir := &fakeDirectory{schemas: map[string]bool{"gi_kace": true}}
	mw := WithTenantSpace(Config{Resolver: tenant.NewResolver("example.com"), Directory: dir, Logger: zaptest.NewLogger(t)})

	resp, space := serve(t, mw, "gi-kace.example.com:8080")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, tenant.Space{Key: "gi-kace", SchemaName: "gi_kace"}, space)
	require.Equal(t, 1, dir.calls)
}

func TestWithTenantSpaceDefaultSkipsDirectory(t *testing.T) {
	dir := &fakeDirectory{}
	mw := WithTenantSpace(Config{Resolver: tenant.NewResolver("example.com"), Directory: dir})

	resp, space := serve(t, mw, "example.com")
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, space.IsDefault())
	require.Zero(t, dir.calls)
}

func TestWithTenantSpaceUnknownTenant(t *testing.T) {
	mw := WithTenantSpace(Config{Resolver: tenant.NewResolver("example.com"), Directory: &fakeDirectory{}})

	resp, _ := serve(t, mw, "ghost.example.com")
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, "application/problem+json", resp.Header().Get("Content-Type"))

	var body problem.Details
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, `Tenant "ghost" not found`, body.Detail)
}

func TestWithTenantSpaceDirectoryFailure(t *testing.T) {
	mw := WithTenantSpace(Config{
		Resolver:  tenant.NewResolver("example.com"),
		Directory: &fakeDirectory{err: errors.New("connection refused")},
	})

	resp, _ := serve(t, mw, "acme.example.com")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.NotContains(t, resp.Body.String(), "connection refused")
}

func TestWithTenantSpaceWithoutDirectory(t *testing.T) {
	mw := WithTenantSpace(Config{Resolver: tenant.NewResolver("")})

	resp, space := serve(t, mw, "acme.localhost:8000")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "acme", space.SchemaName)
}

func TestWithTenantSpaceRequiresResolver(t *testing.T) {
	require.Panics(t, func() { WithTenantSpace(Config{}) })
}

func TestRequirePlatform(t *testing.T) {
	h := RequirePlatform(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req.WithContext(tenant.WithSpace(req.Context(), tenant.Default())))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req.WithContext(tenant.WithSpace(req.Context(), tenant.SpaceForKey("acme"))))
	require.Equal(t, http.StatusNotFound, resp.Code)
}
