package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	"github.com/zenGate-Global/appraisal-saas/platform/go/requesttrace"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

// RequestTrace populates the context with request-scoped AuditInfo so services can stamp and log
// who did what on which tenant. It must run after the tenant middleware.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, _ := r.Context().Value(middleware.RequestIDKey).(string)

		audit := requesttrace.Anonymous(requestID)
		if space, ok := tenant.FromContext(r.Context()); ok {
			audit.TenantKey = space.Key
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger, ok := platformlogging.FromContext(ctx); ok {
			logger = logger.With(zap.String("actor_kind", string(audit.ActorKind)))
			ctx = platformlogging.WithLogger(ctx, logger)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
