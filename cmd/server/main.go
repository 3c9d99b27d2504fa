package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"onboard/internal/countries"
	"onboard/internal/email"
	"onboard/internal/email/disposable"
	"onboard/internal/phone"
	"onboard/internal/platform/config"
	"onboard/internal/platform/httpserver"
	"onboard/internal/platform/logger"
	"onboard/internal/platform/metrics"
	"onboard/internal/platform/postgres"
	"onboard/internal/platform/redis"
	"onboard/internal/ratelimit"
	"onboard/internal/settings"
	settingsstore "onboard/internal/settings/store"
	"onboard/internal/signup/handler"
	"onboard/internal/signup/service"
	"onboard/internal/signup/store/authaccount"
	"onboard/internal/signup/store/primary"
	"onboard/internal/signup/validation"
	"onboard/pkg/platform/audit/publisher"
	auditmemory "onboard/pkg/platform/audit/store/memory"
	auditpostgres "onboard/pkg/platform/audit/store/postgres"
	"onboard/pkg/platform/circuit"
	"onboard/pkg/platform/httputil"
	"onboard/pkg/platform/middleware/metadata"
	request "onboard/pkg/platform/middleware/request"
	"onboard/pkg/platform/middleware/requesttime"
	"onboard/pkg/platform/secrets"
)

// main wires dependencies and keeps the server lifecycle small. Business logic
// lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// stores bundles the persistence chosen at startup.
type stores struct {
	db        *sql.DB
	settings  settings.ParamStore
	primaries service.PrimaryStore
	auths     service.AuthAccountStore
	emails    email.ExistenceChecker
	tx        service.StoreTx
	audit     publisher.Store
}

// app is the wired process: the router plus what must be released on exit.
type app struct {
	router  http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	srv := httpserver.New(cfg.Addr, a.router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting signup service", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newApp(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	trusted, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	a := &app{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if st.db != nil {
		a.closers = append(a.closers, func() { _ = st.db.Close() })
	}

	cache, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		// The cache only shortens reputation lookups.
		log.Warn("redis unavailable, disposable cache disabled", "error", err)
		cache = nil
	}
	if cache != nil {
		a.closers = append(a.closers, func() { _ = cache.Close() })
	}

	resolver, err := email.NewDNSResolver(cfg.DNS.Servers, cfg.DNS.Timeout)
	if err != nil {
		a.close()
		return nil, err
	}

	selectorOpts := []disposable.SelectorOption{
		disposable.WithAPI(disposable.NewAPIClient(cfg.Disposable.APIURL,
			disposable.WithTimeout(cfg.Disposable.Timeout),
			disposable.WithBreaker(circuit.New("disposable-api")),
			disposable.WithAPILogger(log),
		)),
		disposable.WithObserver(m),
		disposable.WithLogger(log),
	}
	if cache != nil {
		selectorOpts = append(selectorOpts, disposable.WithCache(cache.Client, cfg.Disposable.CacheTTL))
	}
	detectors := disposable.NewSelector(disposable.NewLibrary(), selectorOpts...)

	directory := countries.New()
	policies := settings.NewProvider(st.settings, settings.WithLogger(log))
	emailValidator := email.New(resolver, detectors, st.emails,
		email.WithLogger(log),
		email.WithObserver(m),
		email.WithStageTimeout(cfg.DNS.Timeout),
	)
	phoneValidator := phone.New(directory,
		phone.WithDegradedMode(cfg.Phone.LibraryDisabled),
		phone.WithLogger(log),
	)
	if cfg.Phone.LibraryDisabled {
		log.Warn("phone library disabled, using loose pattern validation")
	}
	pipeline := validation.New(policies, emailValidator, phoneValidator,
		validation.WithLogger(log),
		validation.WithObserver(m),
	)

	auditPublisher := publisher.NewPublisher(st.audit,
		publisher.WithAsyncBuffer(256),
		publisher.WithLogger(log),
	)
	a.closers = append(a.closers, auditPublisher.Close)

	svc := service.New(service.Deps{
		Policies:  policies,
		Pipeline:  pipeline,
		Email:     emailValidator,
		Phone:     phoneValidator,
		Countries: directory,
		Primaries: st.primaries,
		Auths:     st.auths,
		Tx:        st.tx,
		Hasher:    secrets.NewHasher(cfg.BcryptCost),
	},
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(m),
	)

	limiterOpts := []ratelimit.Option{
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithLimit(ratelimit.ClassValidate, ratelimit.Limit{Requests: cfg.RateLimit.ValidatePerMinute, Window: time.Minute}),
		ratelimit.WithLimit(ratelimit.ClassSubmit, ratelimit.Limit{Requests: cfg.RateLimit.SubmitPerMinute, Window: time.Minute}),
		ratelimit.WithLogger(log),
		ratelimit.WithObserver(m),
	}
	if cache != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithPrimary(ratelimit.NewRedisStore(cache.Client)))
	}
	limiter := ratelimit.New(limiterOpts...)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go limiter.RunSweeper(sweepCtx, 5*time.Minute)
	a.closers = append(a.closers, stopSweep)

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadataBehind(trusted))
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(m.Middleware)
	r.Get("/health", healthHandler(st.db, cache))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(30 * time.Second))
		h := handler.New(svc, log, handler.WithRateLimiter(limiter))
		h.Register(r)
		if cfg.AdminAPIToken == "" {
			log.Warn("ADMIN_API_TOKEN not set, admin routes reject every request")
		}
		h.RegisterAdmin(r, cfg.AdminAPIToken)
	})
	a.router = r
	return a, nil
}

func openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			return nil, errors.New("DATABASE_URL is required in production")
		}
		log.Warn("DATABASE_URL not set, using in-memory stores")
		primaries := primary.NewInMemory()
		auths := authaccount.NewInMemory()
		return &stores{
			settings:  settingsstore.NewInMemory(nil),
			primaries: primaries,
			auths:     auths,
			emails:    primaries,
			tx:        service.NewInMemoryTx(primaries, auths),
			audit:     auditmemory.NewInMemoryStore(),
		}, nil
	}

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	primaries := primary.NewPostgres(db)
	auths := authaccount.NewPostgres(db)
	return &stores{
		db:        db,
		settings:  settingsstore.NewPostgres(db),
		primaries: primaries,
		auths:     auths,
		emails:    primaries,
		tx:        newSignupPostgresTx(db, primaries, auths, cfg.TxTimeout),
		audit:     auditpostgres.New(db),
	}, nil
}

func healthHandler(db *sql.DB, cache *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				status["status"], status["database"] = "degraded", err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		if cache != nil {
			if err := cache.Health(ctx); err != nil {
				// Verdicts still resolve without the cache.
				status["redis"] = err.Error()
			}
		}
		httputil.WriteJSON(w, code, status)
	}
}
