package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/patient-records/internal/config"
	"github.com/jwalitptl/patient-records/internal/email"
	auditHandler "github.com/jwalitptl/patient-records/internal/handler/audit"
	authHandler "github.com/jwalitptl/patient-records/internal/handler/auth"
	favouriteHandler "github.com/jwalitptl/patient-records/internal/handler/favourite"
	"github.com/jwalitptl/patient-records/internal/handler/health"
	labsHandler "github.com/jwalitptl/patient-records/internal/handler/labs"
	patientHandler "github.com/jwalitptl/patient-records/internal/handler/patient"
	reportHandler "github.com/jwalitptl/patient-records/internal/handler/report"
	userHandler "github.com/jwalitptl/patient-records/internal/handler/user"
	"github.com/jwalitptl/patient-records/internal/labs"
	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/repository/postgres"
	"github.com/jwalitptl/patient-records/internal/router"
	auditService "github.com/jwalitptl/patient-records/internal/service/audit"
	authService "github.com/jwalitptl/patient-records/internal/service/auth"
	favouriteService "github.com/jwalitptl/patient-records/internal/service/favourite"
	patientService "github.com/jwalitptl/patient-records/internal/service/patient"
	reportService "github.com/jwalitptl/patient-records/internal/service/report"
	userService "github.com/jwalitptl/patient-records/internal/service/user"
	"github.com/jwalitptl/patient-records/pkg/auth"
	"github.com/jwalitptl/patient-records/pkg/logger"
	"github.com/jwalitptl/patient-records/pkg/messaging/redis"
	"github.com/jwalitptl/patient-records/pkg/metrics"
	"github.com/jwalitptl/patient-records/pkg/security"
	"github.com/jwalitptl/patient-records/pkg/tokenstore"
	"github.com/jwalitptl/patient-records/pkg/validator"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	gin.SetMode(cfg.Server.Mode)

	clinicLoc, err := cfg.Clinic.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load clinic timezone")
	}
	if err := validator.Setup(labs.IsFieldKey, clinicLoc); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(db.DB, appLogger); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB, cfg.Database.Name),
	)
	m := metrics.NewMetrics(reg, "records")

	checks := map[string]health.Pinger{"database": db}

	var tokens tokenstore.Store
	if cfg.Redis.URL != "" {
		client, err := redis.NewClient(redisConfig(cfg.Redis))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure Redis")
		}
		defer client.Close()
		tokens = tokenstore.NewRedisStore(client)
		checks["redis"] = pingRedis(client)
	} else {
		log.Warn().Msg("redis.url not set, token revocations are kept in memory")
		tokens = tokenstore.NewMemoryStore(10 * time.Minute)
	}

	cookieKey, err := security.NewAESEncryptor([]byte(cfg.Security.CookieKey))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create cookie encryptor")
	}

	base := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(base)
	patientRepo := postgres.NewPatientRepository(base)
	reportRepo := postgres.NewReportRepository(base)
	auditRepo := postgres.NewAuditRepository(base)

	hasher := security.NewBcryptHasher(cfg.Security.BcryptCost)
	jwtSvc := auth.NewJWTService(auth.Config{
		Secret:        cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTokenTTL(),
		RefreshTTL:    cfg.JWT.RefreshTokenTTL(),
	})

	auditSvc := auditService.NewService(auditRepo, appLogger)
	authSvc := authService.NewService(userRepo, jwtSvc, tokens, hasher, auditSvc, m, appLogger)
	userSvc := userService.NewService(userRepo, hasher, email.NewService(cfg.SMTP), auditSvc, appLogger)
	patientSvc := patientService.NewService(patientRepo, auditSvc, m)
	reportSvc := reportService.NewService(reportRepo, patientRepo, auditSvc, m, clinicLoc)
	favouriteSvc := favouriteService.NewService(cookieKey, reportSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	created, err := authSvc.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword, cfg.Bootstrap.AdminName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap administrator")
	}
	if created {
		log.Info().Str("email", cfg.Bootstrap.AdminEmail).Msg("bootstrap administrator created")
	}

	authH := authHandler.NewHandler(authSvc)

	var limit *middleware.RateLimiterConfig
	if cfg.RateLimit.Enabled {
		limit = &middleware.RateLimiterConfig{
			RPS:   cfg.RateLimit.RequestsPerSecond,
			Burst: cfg.RateLimit.Burst,
		}
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		m,
		health.NewHandler(reg, checks),
		[]router.PublicHandler{authH},
		[]router.Handler{
			authH,
			userHandler.NewHandler(userSvc),
			auditHandler.NewHandler(auditSvc),
			patientHandler.NewHandler(patientSvc),
			reportHandler.NewHandler(reportSvc),
			labsHandler.NewHandler(),
			favouriteHandler.NewHandler(favouriteSvc, reportSvc, favouriteHandler.CookieConfig{
				Secure: cfg.Security.CookieSecure,
				Path:   "/",
			}),
		},
		router.Config{
			AllowedOrigins: cfg.Security.AllowedOrigins,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			RequestTimeout: cfg.Server.WriteTimeout,
			RateLimit:      limit,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server exited")
}

func redisConfig(cfg config.RedisConfig) redis.Config {
	return redis.Config{
		URL:          cfg.URL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
}

func pingRedis(client *goredis.Client) health.PingFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
