package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bedlink/bedlink/internal/config"
	"github.com/bedlink/bedlink/internal/domain/admission"
	"github.com/bedlink/bedlink/internal/domain/dashboard"
	"github.com/bedlink/bedlink/internal/domain/referral"
	"github.com/bedlink/bedlink/internal/domain/reservation"
	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/audit"
	"github.com/bedlink/bedlink/internal/platform/auth"
	"github.com/bedlink/bedlink/internal/platform/db"
	"github.com/bedlink/bedlink/internal/platform/lock"
	"github.com/bedlink/bedlink/internal/platform/memstore"
	"github.com/bedlink/bedlink/internal/platform/middleware"
	"github.com/bedlink/bedlink/internal/platform/notification"
	"github.com/bedlink/bedlink/internal/platform/telemetry"
)

const sinkTimeout = 5 * time.Second

// app is the wired dependency graph shared by serve, sweep and hospital.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client

	wards        *ward.Service
	reservations *reservation.Service
	admissions   *admission.Service
	referrals    *referral.Service
	dashboard    *dashboard.Service
	sweeper      *reservation.Sweeper

	closers []func()
}

type repositories struct {
	tx         db.TxRunner
	hospitals  ward.HospitalRepository
	wards      ward.WardRepository
	reserve    reservation.Repository
	patients   admission.PatientRepository
	admissions admission.AdmissionRepository
	referrals  referral.Repository
	dashboard  dashboard.Repository
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	repos, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
		logger.Info().Msg("connected to redis")
	}

	recorder, err := a.auditRecorder()
	if err != nil {
		a.Close()
		return nil, err
	}
	notifier, err := a.notifier(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a.wards = ward.NewService(repos.hospitals, repos.wards, logger)
	a.wards.SetAudit(recorder)
	a.wards.SetMetrics(metrics)

	a.reservations = reservation.NewService(repos.reserve, a.wards, repos.tx, reservation.Config{
		DefaultTTL: cfg.ReservationDefaultTTL,
		MaxTTL:     cfg.ReservationMaxTTL,
		Grace:      cfg.ReservationGrace,
	}, logger)
	a.reservations.SetAudit(recorder)
	a.reservations.SetNotifier(notifier)
	a.reservations.SetMetrics(metrics)

	a.admissions = admission.NewService(repos.patients, repos.admissions, a.wards, a.reservations, repos.tx, logger)
	a.admissions.SetAudit(recorder)
	a.admissions.SetNotifier(notifier)

	a.referrals = referral.NewService(repos.referrals, a.wards, a.reservations, a.admissions, repos.tx, logger)
	a.referrals.SetAudit(recorder)
	a.referrals.SetNotifier(notifier)
	a.referrals.SetMetrics(metrics)

	a.dashboard = dashboard.NewService(repos.dashboard, logger)

	var locker lock.Locker = lock.Local{}
	if a.redis != nil {
		locker = lock.NewRedisLocker(a.redis, "bedlink:lock:")
	}
	a.sweeper = reservation.NewSweeper(a.reservations, locker, cfg.SweepInterval, logger)

	return a, nil
}

func (a *app) openStore(ctx context.Context) (repositories, error) {
	if a.cfg.StoreBackend == config.BackendMemory {
		a.logger.Warn().Msg("using in-memory store, data is lost on restart")
		s := memstore.New()
		return repositories{
			tx:         s,
			hospitals:  s.Hospitals(),
			wards:      s.Wards(),
			reserve:    s.Reservations(),
			patients:   s.Patients(),
			admissions: s.Admissions(),
			referrals:  s.Referrals(),
			dashboard:  s.Dashboard(),
		}, nil
	}

	pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
	if err != nil {
		return repositories{}, fmt.Errorf("connect to database: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	a.logger.Info().Msg("connected to database")

	return repositories{
		tx:         db.NewPoolTxRunner(pool),
		hospitals:  ward.NewHospitalRepoPG(pool),
		wards:      ward.NewWardRepoPG(pool),
		reserve:    reservation.NewRepoPG(pool),
		patients:   admission.NewPatientRepoPG(pool),
		admissions: admission.NewAdmissionRepoPG(pool),
		referrals:  referral.NewRepoPG(pool),
		dashboard:  dashboard.NewRepoPG(pool),
	}, nil
}

func (a *app) auditRecorder() (audit.Recorder, error) {
	var sink audit.Sink
	switch a.cfg.AuditBackend {
	case config.BackendPostgres:
		if a.pool == nil {
			return nil, fmt.Errorf("postgres audit sink needs a database")
		}
		sink = audit.NewPGSink(a.pool)
	case "kafka":
		k := audit.NewKafkaSink(a.cfg.KafkaBrokers, a.cfg.KafkaAuditTopic)
		a.closers = append(a.closers, func() { _ = k.Close() })
		sink = k
	default:
		sink = audit.NewLogSink(a.logger)
	}
	async := audit.NewAsync(sink, a.logger, sinkTimeout)
	// Flush pending entries before the sink closes; closers run in reverse.
	a.closers = append(a.closers, async.Wait)
	return async, nil
}

func (a *app) notifier(ctx context.Context) (notification.Notifier, error) {
	var sender notification.Sender
	switch a.cfg.NotifyBackend {
	case "redis":
		if a.redis == nil {
			return nil, fmt.Errorf("redis notifier needs REDIS_URL")
		}
		sender = notification.NewRedisSender(a.redis)
	case "sqs":
		s, err := notification.NewSQSSender(ctx, a.cfg.NotifySQSQueueURL)
		if err != nil {
			return nil, err
		}
		sender = s
	default:
		sender = notification.NewLogSender(a.logger)
	}
	return notification.NewBestEffort(sender, a.logger, sinkTimeout), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) newServer() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(a.logger)

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(telemetry.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	if a.pool != nil {
		e.GET("/health", db.HealthHandler(a.pool))
	} else {
		e.GET("/health", db.StaticHealthHandler(cfg.StoreBackend))
	}

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthKey),
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// The limiter charges the authenticated actor, so it runs after authMW.
	api := e.Group("/api/v1",
		middleware.RequestTimeout(cfg.RequestTimeout),
		authMW,
		middleware.RateLimit(rateLimitCfg),
	)
	ward.NewHandler(a.wards).RegisterRoutes(api)
	reservation.NewHandler(a.reservations).RegisterRoutes(api)
	admission.NewHandler(a.admissions).RegisterRoutes(api)
	referral.NewHandler(a.referrals).RegisterRoutes(api)
	dashboard.NewHandler(a.dashboard).RegisterRoutes(api)

	return e
}
