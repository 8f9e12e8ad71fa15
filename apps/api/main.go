package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	recordshandler "github.com/zenGate-Global/appraisal-saas/domains/records/be/handler"
	recordsrepo "github.com/zenGate-Global/appraisal-saas/domains/records/be/repo"
	recordsservice "github.com/zenGate-Global/appraisal-saas/domains/records/be/service"
	tenantshandler "github.com/zenGate-Global/appraisal-saas/domains/tenants/be/handler"
	tenantsprov "github.com/zenGate-Global/appraisal-saas/domains/tenants/be/provisioning"
	tenantsrepo "github.com/zenGate-Global/appraisal-saas/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/appraisal-saas/domains/tenants/be/service"
	"github.com/zenGate-Global/appraisal-saas/platform/go/catalog"
	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/appraisal-saas/platform/go/middleware"
	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence"
	"github.com/zenGate-Global/appraisal-saas/platform/go/query"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"` // json | console
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DBMaxConns      int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns      int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	BaseDomain      string        `env:"TENANT_BASE_DOMAIN"` // e.g. appraisal.app; empty takes the leftmost label of 3+ label hosts
	AllowOrigins    string        `env:"ALLOW_ORIGINS"`      // comma separated; empty uses the built-in defaults
	TenantCacheTTL  time.Duration `env:"TENANT_CACHE_TTL" envDefault:"1m"`
	TenantCacheMax  int64         `env:"TENANT_CACHE_MAX_COST" envDefault:"10000"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxLifetime,
		MaxConnIdleTime: cfg.DBMaxIdleTime,
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{
		Pool:   pool,
		Logger: logger.Named("tenant-db"),
	})

	directory, err := persistence.NewSchemaDirectory(persistence.SchemaDirectoryConfig{
		Pool:       pool,
		TTL:        cfg.TenantCacheTTL,
		MaxEntries: cfg.TenantCacheMax,
	})
	if err != nil {
		logger.Fatal("init schema directory", zap.Error(err))
	}
	defer directory.Close()

	tenantCatalog := catalog.Tenant()

	tenantService := tenantsservice.NewWithProvisioning(
		tenantsrepo.NewPostgresRepository(tenantDB),
		cfg.BaseDomain,
		tenantsservice.ProvisioningDeps{
			DB:        tenantsprov.NewDBProvisioner(tenantDB, tenantCatalog, logger.Named("provisioning")),
			Directory: directory,
			Logger:    logger,
		},
	)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	engine := query.NewEngine(tenantCatalog, logger.Named("query"))
	recordsService := recordsservice.New(recordsrepo.NewPostgresRepository(tenantDB, engine), tenantCatalog)
	recordsHTTPHandler := recordshandler.New(recordsService, tenantHTTPHandler, logger)

	router := newRouter(routerDeps{
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		AllowOrigins:   platformmiddleware.ParseOrigins(cfg.AllowOrigins),
		Resolver:       tenant.NewResolver(cfg.BaseDomain),
		Directory:      directory,
		Ready:          pool.Ping,
		Tenants:        tenantHTTPHandler,
		Records:        recordsHTTPHandler,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port), zap.String("base_domain", cfg.BaseDomain))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
