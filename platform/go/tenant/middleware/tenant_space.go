package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	"github.com/zenGate-Global/appraisal-saas/platform/go/problem"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

// Directory reports whether a tenant schema has been provisioned.
// Implemented by persistence.SchemaDirectory.
type Directory interface {
	Exists(ctx context.Context, schema string) (bool, error)
}

// Config controls middleware behavior.
type Config struct {
	Resolver *tenant.Resolver
	// Directory rejects hosts whose schema does not exist; nil trusts every resolved host.
	Directory Directory
	Logger    *zap.Logger
}

// WithTenantSpace resolves the tenant from the request host and attaches tenant.Space to the
// context. Unknown tenants are answered with 404 before any handler runs.
func WithTenantSpace(cfg Config) func(http.Handler) http.Handler {
	if cfg.Resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			space := cfg.Resolver.Resolve(r.Host)
			logger := platformlogging.FromRequest(r, cfg.Logger).With(zap.String("tenant", space.Key))

			if !space.IsDefault() && cfg.Directory != nil {
				exists, err := cfg.Directory.Exists(r.Context(), space.SchemaName)
				if err != nil {
					logger.Error("tenant lookup failed", zap.Error(err))
					problem.Write(w, problem.FromError(problem.Internal(err)))
					return
				}
				if !exists {
					logger.Info("unknown tenant")
					problem.Write(w, problem.FromError(problem.NotFound("Tenant %q not found", space.Key)))
					return
				}
			}

			ctx := tenant.WithSpace(r.Context(), space)
			ctx = platformlogging.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePlatform only lets requests resolved to the default tenant through. Tenant hosts get
// a 404 so platform routes are invisible to them.
func RequirePlatform(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tenant.FromContextOrDefault(r.Context()).IsDefault() {
			problem.Write(w, problem.FromError(problem.NotFound("Resource not found")))
			return
		}
		next.ServeHTTP(w, r)
	})
}
