// Package coffeeapp wires the session codec, request gate, stores and
// built-in auth handlers into a single http.Handler.
package coffeeapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/quincarter/coffee-app-sub000/internal/config"
	"github.com/quincarter/coffee-app-sub000/internal/db"
	"github.com/quincarter/coffee-app-sub000/internal/logutil"
	"github.com/quincarter/coffee-app-sub000/internal/mailer"
	"github.com/quincarter/coffee-app-sub000/internal/metrics"
	"github.com/quincarter/coffee-app-sub000/internal/profilecache"
	"github.com/quincarter/coffee-app-sub000/pkg/builtins"
	"github.com/quincarter/coffee-app-sub000/pkg/gate"
	"github.com/quincarter/coffee-app-sub000/pkg/models/passwd"
	"github.com/quincarter/coffee-app-sub000/pkg/services"
	"github.com/quincarter/coffee-app-sub000/pkg/session"
	"github.com/quincarter/coffee-app-sub000/web"
)

// maintenanceInterval is how often expired tokens and idle rate limiter
// entries are swept.
const maintenanceInterval = 10 * time.Minute

type App struct {
	logger   *slog.Logger
	config   *config.Config
	Services *services.Services
	Codec    *session.Codec
	Gate     *gate.Gate
	Metrics  *metrics.Metrics

	builtin *builtins.Builtin
	handler http.Handler

	// Hold information to initialize services after configuration
	db      *sqlx.DB
	dbType  db.Type
	ownsDB  bool
	rdb     redis.UniversalClient
	ownsRDB bool
	mail    mailer.Mailer

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(*App)

func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithConfig supplies configuration instead of loading it from the environment.
func WithConfig(c *config.Config) Option {
	return func(a *App) {
		a.config = c
	}
}

// WithDB uses an existing connection. The caller keeps ownership and must close it.
func WithDB(conn *sqlx.DB, t db.Type) Option {
	return func(a *App) {
		a.db = conn
		a.dbType = t
	}
}

// WithRedis enables the profile cache on an existing client. The caller keeps ownership.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(a *App) {
		a.rdb = rdb
	}
}

func WithMailer(m mailer.Mailer) Option {
	return func(a *App) {
		a.mail = m
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) {
		a.Metrics = m
	}
}

func New(opts ...Option) (*App, error) {
	app := &App{
		logger: logutil.Discard(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		app.config = cfg
	}
	cfg := app.config
	app.logger.Info("starting coffee app", "env", cfg.Env)

	if err := app.connect(); err != nil {
		app.Close()
		return nil, err
	}

	key, insecure := cfg.SessionKey()
	if insecure {
		app.logger.Error("SESSION_SECRET is not set, signing sessions with the built-in development key; anyone can forge sessions")
	}
	codec, err := session.NewCodec(key, session.WithTTL(cfg.SessionTTL), session.WithLogger(app.logger))
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Codec = codec

	var svcOpts []services.Option
	if app.rdb != nil {
		svcOpts = append(svcOpts, services.WithProfileCache(app.rdb, cfg.ProfileCacheTTL))
	}
	app.Services = services.New(app.db, app.dbType, app.logger, passwd.NewHasher(cfg.BcryptCost), svcOpts...)
	app.logger.Debug("coffee app services loaded")

	if err := app.Services.RunMigrations(); err != nil {
		app.Close()
		return nil, fmt.Errorf("unable to run migrations: %w", err)
	}
	app.logger.Debug("successfully run migrations")

	gateCfg := gate.DefaultConfig()
	gateCfg.CookieName = cfg.SessionCookieName
	gateCfg.LookupTimeout = cfg.ProfileLookupTimeout
	gateOpts := []gate.Option{gate.WithLogger(app.logger)}
	if app.Metrics != nil {
		gateOpts = append(gateOpts, gate.WithRecorder(app.Metrics))
	}
	app.Gate = gate.New(codec, app.Services.Profiles, gateCfg, gateOpts...)
	app.logger.Info("request gate loaded", "lookup_timeout", cfg.ProfileLookupTimeout)

	if err := app.loadRoutes(); err != nil {
		app.Close()
		return nil, err
	}

	app.Services.StartWorkers(maintenanceInterval)
	app.wg.Add(1)
	go app.pruneLimiters()

	return app, nil
}

// connect opens the database and Redis connections not supplied as options.
func (a *App) connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.db == nil {
		conn, err := db.Open(ctx, db.Type(a.config.DBType), a.config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("unable to open database: %w", err)
		}
		a.db, a.dbType, a.ownsDB = conn, db.Type(a.config.DBType), true
	} else if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("unable to ping database: %w", err)
	}
	a.logger.Debug("successfully connected to database", "db_type", string(a.dbType))

	if a.rdb == nil && a.config.RedisURL != "" {
		rdb, err := profilecache.NewClient(ctx, a.config.RedisURL)
		if err != nil {
			return fmt.Errorf("unable to connect to redis: %w", err)
		}
		a.rdb, a.ownsRDB = rdb, true
		a.logger.Info("profile cache enabled", "ttl", a.config.ProfileCacheTTL)
	}
	return nil
}

func (a *App) loadRoutes() error {
	mail := a.mail
	if mail == nil {
		mail = mailer.NewLogMailer(a.logger)
	}
	pages, err := web.NewRenderer()
	if err != nil {
		return err
	}

	cookies := session.DefaultCookieConfig(a.config.IsProduction())
	cookies.Name = a.config.SessionCookieName
	cookies.MaxAge = a.Codec.TTL()

	deps := builtins.Deps{
		Auth:          a.Services.Auth,
		Tokens:        a.Services.Token,
		Codec:         a.Codec,
		Cookies:       cookies,
		Gate:          a.Gate,
		Mailer:        mail,
		Pages:         pages,
		Invalidator:   a.Services,
		RatePerMinute: a.config.LoginRatePerMinute,
	}
	if a.Metrics != nil {
		deps.Sessions = a.Metrics
		deps.OnRateLimit = a.Metrics.RateLimited
	}

	a.builtin, err = builtins.New(a.logger, deps, builtins.Config{
		BaseURL:          a.config.BaseURL,
		MagicLinkTTL:     a.config.MagicLinkTTL,
		VerificationTTL:  a.config.VerificationTTL,
		PasswordResetTTL: a.config.PasswordResetTTL,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	if err := a.builtin.LoadAllRoutes(mux); err != nil {
		return fmt.Errorf("unable to register routes: %w", err)
	}
	a.handler = a.Gate.Middleware(mux)
	return nil
}

func (a *App) pruneLimiters() {
	defer a.wg.Done()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := a.builtin.PruneLimiters(); n > 0 {
				a.logger.Debug("pruned idle rate limiters", "count", n)
			}
		case <-a.stopCh:
			return
		}
	}
}

// Handler returns the gated application handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.config
}

// Close stops background workers and closes the connections New opened
// itself. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		close(a.stopCh)
		a.wg.Wait()
		if a.Services != nil {
			a.Services.Close()
		}
		if a.ownsRDB && a.rdb != nil {
			errs = append(errs, a.rdb.Close())
		}
		if a.ownsDB && a.db != nil {
			errs = append(errs, a.db.Close())
		}
	})
	return errors.Join(errs...)
}
