package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/ceremony-admission/internal/config"
	"github.com/iliyamo/ceremony-admission/internal/database"
	"github.com/iliyamo/ceremony-admission/internal/handler"
	"github.com/iliyamo/ceremony-admission/internal/logger"
	"github.com/iliyamo/ceremony-admission/internal/metrics"
	"github.com/iliyamo/ceremony-admission/internal/middleware"
	"github.com/iliyamo/ceremony-admission/internal/queue"
	"github.com/iliyamo/ceremony-admission/internal/ratelimit"
	"github.com/iliyamo/ceremony-admission/internal/repository"
	"github.com/iliyamo/ceremony-admission/internal/router"
	"github.com/iliyamo/ceremony-admission/internal/service"
	"github.com/iliyamo/ceremony-admission/internal/signing"
)

func main() {
	cfg := config.Load()
	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		lg.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			lg.Fatal("migrate database", zap.Error(err))
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		lg.Warn("redis unavailable, using in-process key store and scan throttle")
	} else {
		defer rdb.Close()
	}

	signer := newSigner(ctx, rdb, lg)

	tickets := repository.NewTicketRepo(db)
	graduates := repository.NewGraduateRepo(db)
	invitations := repository.NewInvitationRepo(db)
	scans := repository.NewScanRepo(db)

	var sink service.AuditSink = scans
	if cfg.Audit.Sink == "queue" {
		pub := queue.NewScanPublisher(cfg.RabbitURL, lg)
		defer pub.Close()
		sink = pub
	}
	auditOpts := []service.AuditOption{
		service.WithAuditLogger(lg),
		service.WithFailureHook(metrics.AuditFailures.Inc),
	}
	if cfg.Audit.Async {
		auditOpts = append(auditOpts, service.WithAsync(cfg.Audit.Timeout))
	}
	audit := service.NewScanAuditLog(sink, auditOpts...)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(lg))

	router.RegisterRoutes(e, db, rdb)
	router.RegisterScan(e, &handler.ScanHandler{
		Guard:     newScanGuard(rdb, lg),
		Validator: service.NewScanValidator(tickets, signer, nil, lg),
		Audit:     audit,
		Timeout:   cfg.ScanTimeout,
	}, cfg.JWTSecret)

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, lg)
	router.RegisterGraduate(e, &handler.GraduateHandler{
		Graduates:   graduates,
		Invitations: invitations,
		Tickets:     tickets,
		Issuer: service.NewInvitationIssuer(db, graduates, repository.NewEventRepo(db), invitations, tickets, signer,
			service.WithIssuerLogger(lg)),
		Canceller: service.NewInvitationCanceller(db, graduates, invitations, tickets, nil, lg),
	}, cfg.JWTSecret, limit)
	router.RegisterAdmin(e, &handler.AdminHandler{
		Revoker: service.NewTicketRevoker(tickets, nil, lg),
		Signer:  signer,
		Scans:   scans,
	}, cfg.JWTSecret, limit)

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdown); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
	audit.Wait()
}

// newSigner builds the signing service on Redis when available so that
// every instance shares one key set.
func newSigner(ctx context.Context, rdb *redis.Client, lg *zap.Logger) *signing.Service {
	sc := config.LoadSigningConfig()
	var store signing.KeyStore = signing.NewMemoryKeyStore(nil)
	if rdb != nil {
		store = signing.NewRedisKeyStore(rdb, sc.KeyPrefix)
	}
	signer, err := signing.New(store,
		signing.WithAlgorithm(sc.Algorithm),
		signing.WithRotation(sc.Rotation),
		signing.WithLogger(lg),
		signing.WithRotateHook(metrics.KeyRotations.Inc),
	)
	if err != nil {
		lg.Fatal("signing service", zap.Error(err))
	}
	if sc.RotateEvery > 0 {
		go signer.RunRotation(ctx, sc.RotateEvery)
	}
	return signer
}

func newScanGuard(rdb *redis.Client, lg *zap.Logger) *ratelimit.ScanGuard {
	tc := config.LoadScanThrottleConfig()
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(tc.Limit, tc.Window, nil)
	if rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, tc.Limit, tc.Window)
	}
	return ratelimit.NewScanGuard(limiter, tc.Prefix, lg)
}
