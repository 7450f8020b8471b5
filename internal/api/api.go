// Package api wires RoleBridge together and serves its HTTP endpoints.
//
// Run composes the store, session engine, Roblox client, Discord gateway,
// interaction router and housekeeping scheduler, and exposes health, stats
// and bind listings over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/commands"
	"github.com/BTreeMap/RoleBridge/internal/discord"
	"github.com/BTreeMap/RoleBridge/internal/prompt"
	"github.com/BTreeMap/RoleBridge/internal/roblox"
	"github.com/BTreeMap/RoleBridge/internal/scheduler"
	"github.com/BTreeMap/RoleBridge/internal/session"
	"github.com/BTreeMap/RoleBridge/internal/store"
	"golang.org/x/sync/errgroup"
)

var _ commands.RoleManager = (*discord.Client)(nil)

const (
	// DefaultAddr is the default HTTP listen address.
	DefaultAddr = ":8080"
	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 10 * time.Second
	// statsSchedule logs the interaction counters hourly.
	statsSchedule = "0 * * * *"
)

// Opts holds configuration options for the service.
type Opts struct {
	Addr             string
	SweepSchedule    string
	SessionTTL       time.Duration
	RedisURL         string
	RegisterCommands bool
}

// Option defines a configuration option for the service.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSweepSchedule sets the cron expression of the store sweep.
func WithSweepSchedule(expr string) Option {
	return func(o *Opts) { o.SweepSchedule = expr }
}

// WithSessionTTL overrides session.DefaultTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithRedisURL keeps prompt sessions in Redis instead of the main store.
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.RedisURL = url }
}

// WithCommandRegistration overwrites the application commands on startup.
func WithCommandRegistration(v bool) Option {
	return func(o *Opts) { o.RegisterCommands = v }
}

func applyOpts(opts []Option) Opts {
	cfg := Opts{Addr: DefaultAddr, SweepSchedule: scheduler.DefaultSweepSchedule, SessionTTL: session.DefaultTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Run starts every module and blocks until SIGINT/SIGTERM or a fatal error.
func Run(discordOpts []discord.Option, storeOpts []store.Option, robloxOpts []roblox.Option, apiOpts []Option) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := applyOpts(apiOpts)
	slog.Debug("api.Run: options applied", "addr", cfg.Addr, "sweep", cfg.SweepSchedule, "session_ttl", cfg.SessionTTL, "redis", cfg.RedisURL != "")

	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("api.Run: store close failed", "error", err)
		}
	}()

	var kv session.KV = st
	if cfg.RedisURL != "" {
		rkv, err := store.NewRedisKV(ctx, store.WithRedisURL(cfg.RedisURL))
		if err != nil {
			return fmt.Errorf("failed to connect session store: %w", err)
		}
		defer rkv.Close()
		kv = rkv
	}
	engine := prompt.NewEngine(session.NewStore(kv, session.WithTTL(cfg.SessionTTL)))

	dc, err := discord.NewClient(discordOpts...)
	if err != nil {
		return err
	}
	bindService := binds.NewService(st)
	router := commands.NewRouter(engine, dc, commands.WithDedup(st))
	commands.Register(router, &commands.Deps{
		Engine: engine,
		Binds:  bindService,
		Roblox: roblox.NewClient(robloxOpts...),
		Roles:  dc,
	})

	if err := dc.Open(); err != nil {
		return err
	}
	defer dc.Close()
	if cfg.RegisterCommands {
		if err := dc.RegisterCommands(ctx, router.ApplicationCommands()); err != nil {
			return err
		}
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddSweep(cfg.SweepSchedule, st); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	if err := sched.AddJob(statsSchedule, func() { logStats(router) }); err != nil {
		return fmt.Errorf("invalid stats schedule: %w", err)
	}

	srv := NewServer(router, bindService, kv)
	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Serve(gctx, dc.Interactions())
	})
	g.Go(func() error {
		slog.Info("RoleBridge API listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("api.Run: shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func logStats(router *commands.Router) {
	st := router.Stats()
	slog.Info("api: interaction stats",
		"commands", st.Commands,
		"components", st.Components,
		"modal_submits", st.ModalSubmits,
		"autocomplete", st.Autocomplete,
		"duplicates", st.Duplicates,
		"errors", st.Errors)
}
