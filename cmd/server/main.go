package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	accountdomain "transitwatch/backend/internal/account/domain"
	accountrepo "transitwatch/backend/internal/account/repository"
	"transitwatch/backend/internal/audit"
	auditrepo "transitwatch/backend/internal/audit/repository"
	"transitwatch/backend/internal/config"
	"transitwatch/backend/internal/db"
	"transitwatch/backend/internal/devreset"
	healthhandler "transitwatch/backend/internal/health/handler"
	identityhandler "transitwatch/backend/internal/identity/handler"
	identityservice "transitwatch/backend/internal/identity/service"
	"transitwatch/backend/internal/notify"
	policyengine "transitwatch/backend/internal/policy/engine"
	"transitwatch/backend/internal/ratelimit"
	rolerepo "transitwatch/backend/internal/role/repository"
	roleservice "transitwatch/backend/internal/role/service"
	"transitwatch/backend/internal/security"
	"transitwatch/backend/internal/server"
	"transitwatch/backend/internal/server/middleware"
	"transitwatch/backend/internal/telemetry"
	telemetryotel "transitwatch/backend/internal/telemetry/otel"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	securityMetrics, err := telemetry.NewSecurityMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	tokens, err := security.NewTokenProvider(security.TokenConfig{
		Issuer:        cfg.JWTIssuer,
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		ResetSecret:   cfg.ResetSecret(),
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		ResetTTL:      cfg.ResetTTL(),
	})
	if err != nil {
		log.Fatalf("tokens: %v (set JWT_ACCESS_SECRET and JWT_REFRESH_SECRET)", err)
	}

	rotation, err := loadRotationPolicy(ctx, cfg.RotationPolicyPath)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	auditRecords := auditrepo.NewPostgresRepository(conn)
	sinks := []audit.Sink{audit.NewRepositorySink(auditRecords)}
	if cfg.AuditLogPath != "" {
		fileSink, err := audit.OpenFileSink(cfg.AuditLogPath)
		if err != nil {
			log.Fatalf("audit: %v", err)
		}
		defer fileSink.Close()
		sinks = append(sinks, fileSink)
	}
	if otelSink := telemetryotel.NewAuditSink(providers.LoggerProvider); otelSink != nil {
		sinks = append(sinks, otelSink)
	}
	auditLog := audit.NewLogger(middleware.RequestMeta, sinks...)

	roles := roleservice.NewRoleService(rolerepo.NewPostgresStore(conn), auditLog, securityMetrics)
	auth := identityservice.NewAuthService(
		accountrepo.NewPostgresRepository(conn),
		roles,
		security.NewHasher(cfg.BcryptCost),
		tokens,
		rotation,
		auditLog,
		securityMetrics,
		identityservice.Options{
			Lockout:          accountdomain.LockoutPolicy{Threshold: cfg.LockoutThreshold, Duration: cfg.LockoutWindow()},
			RootAdminEmail:   cfg.RootAdminEmail,
			ResetLinkBaseURL: cfg.ResetLinkBaseURL,
		},
	).WithGranter(roles)
	if cfg.ResetNotifyURL != "" {
		auth.WithNotifier(notify.NewWebhookNotifier(cfg.ResetNotifyURL, cfg.ResetNotifyAPIKey))
	}
	var devResets devreset.Store
	if cfg.ResetTokenReturnToClient && !cfg.IsProduction() {
		store := devreset.NewMemoryStore()
		auth.WithDevResetStore(store)
		devResets = store
		log.Println("dev: GET /dev/reset-token is enabled")
	}

	limiter, closeLimiter := newLoginLimiter(ctx, cfg)
	defer closeLimiter()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	checker := healthhandler.NewChecker(conn, rotation)
	router := server.NewRouter(server.Deps{
		Auth:   auth,
		Roles:  roles,
		Tokens: tokens,
		Cookies: identityhandler.CookieConfig{
			AccessName:  cfg.CookieAccessName,
			RefreshName: cfg.CookieRefreshName,
			Domain:      cfg.CookieDomain,
			Secure:      cfg.SecureCookies(),
			SameSite:    cfg.SameSite(),
		},
		AuditRecords: auditRecords,
		Health:       checker,
		LoginLimiter: limiter,
		Security:     securityMetrics,
		HTTPMetrics:  httpMetrics,
		DevResets:    devResets,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	var grpcStop func()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		grpcSrv, hs := server.NewGRPCServer()
		go checker.Watch(ctx, hs, 10*time.Second)
		go func() {
			log.Printf("gRPC health server listening on %s", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("serve: %v", err)
			}
		}()
		grpcStop = grpcSrv.GracefulStop
	}

	<-ctx.Done()
	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http: shutdown: %v", err)
	}
	if grpcStop != nil {
		grpcStop()
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry: shutdown: %v", err)
	}
	log.Println("server stopped")
}

func loadRotationPolicy(ctx context.Context, path string) (*policyengine.OPAEvaluator, error) {
	var module string
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		module = string(b)
	}
	return policyengine.NewOPAEvaluator(ctx, module)
}

// newLoginLimiter uses Redis when REDIS_ADDR is set and reachable, so every instance shares
// the budget; otherwise an in-process limiter.
func newLoginLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func()) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(cfg.LoginRateLimit, cfg.RateWindow()), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("ratelimit: redis %s unreachable (%v), using in-process limiter", cfg.RedisAddr, err)
		_ = client.Close()
		return ratelimit.NewMemoryLimiter(cfg.LoginRateLimit, cfg.RateWindow()), func() {}
	}
	return ratelimit.NewRedisLimiter(client, "ratelimit:", cfg.LoginRateLimit, cfg.RateWindow()), func() { _ = client.Close() }
}
