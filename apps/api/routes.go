package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/appraisal-saas/platform/go/middleware"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
	tenantmiddleware "github.com/zenGate-Global/appraisal-saas/platform/go/tenant/middleware"
)

type tenantRoutes interface {
	Routes(r chi.Router)
}

type recordRoutes interface {
	Routes(r chi.Router)
	ListForOrganization(w http.ResponseWriter, r *http.Request)
}

type routerDeps struct {
	Logger         *zap.Logger
	RequestTimeout time.Duration
	AllowOrigins   []string
	Resolver       *tenant.Resolver
	Directory      tenantmiddleware.Directory
	Ready          func(ctx context.Context) error
	Tenants        tenantRoutes
	Records        recordRoutes
}

func newRouter(deps routerDeps) chi.Router {
	root := chi.NewRouter()

	root.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		platformmiddleware.CORS(deps.AllowOrigins),
		platformlogging.RequestLogger(deps.Logger),
	)
	if deps.RequestTimeout > 0 {
		root.Use(chimw.Timeout(deps.RequestTimeout))
	}

	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(r.Context()); err != nil {
				platformlogging.FromRequest(r, deps.Logger).Warn("readiness check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	api := chi.NewRouter()
	api.Use(tenantmiddleware.WithTenantSpace(tenantmiddleware.Config{
		Resolver:  deps.Resolver,
		Directory: deps.Directory,
		Logger:    deps.Logger,
	}))
	api.Use(platformmiddleware.RequestTrace)

	api.Route("/tenants", func(r chi.Router) {
		r.Use(tenantmiddleware.RequirePlatform)
		deps.Tenants.Routes(r)
		r.Get("/{tenantId}/records/{resource}", deps.Records.ListForOrganization)
	})
	deps.Records.Routes(api)

	root.Mount("/api/v1", api)
	return root
}
