// Package core wires configuration, storage, transport, and the
// translation pipeline into one runnable bot.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lingobot/internal/cache"
	"lingobot/internal/config"
	"lingobot/internal/dedup"
	"lingobot/internal/eventbus"
	"lingobot/internal/notify"
	"lingobot/internal/pipeline"
	"lingobot/internal/provider"
	"lingobot/internal/ratelimit"
	"lingobot/internal/storage"
	"lingobot/internal/transport"
	"lingobot/internal/transport/telegram"
	logx "lingobot/pkg/logx"
)

const defaultMaintenanceSchedule = "@every 5m"

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus     eventbus.Bus
	store   storage.Store
	adapter transport.Adapter
	google  *provider.Google // nil when disabled; owned for Close
	router  *Router
	cron    *cron.Cron

	cache   *cache.Cache
	dedup   *dedup.Registry
	limiter *ratelimit.Limiter
	notify  *notify.Service

	cancel  context.CancelFunc
	updates chan transport.Update
	wg      sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	mgr.SetLogger(log)

	app := &App{cfgMgr: mgr, logSvc: logSvc, log: log, bus: eventbus.New()}
	if err := app.build(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(cfg *config.Config) error {
	// Storage (chat settings + error log).
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, a.log.With(logx.String("comp", "storage")))
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.store = st
	}

	// Pipeline windows.
	cacheTTL, err := config.ParseDurationOrDefault("limits.cache_ttl", cfg.Limits.CacheTTL, cache.DefaultTTL)
	if err != nil {
		return err
	}
	dedupWindow, err := config.ParseDurationOrDefault("limits.dedup_window", cfg.Limits.DedupWindow, dedup.DefaultWindow)
	if err != nil {
		return err
	}
	cooldown, err := config.ParseDurationOrDefault("limits.notify_cooldown", cfg.Limits.NotifyCooldown, notify.DefaultCooldown)
	if err != nil {
		return err
	}

	// Transport.
	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}
	a.adapter = adapter

	a.notify = notify.New(a.log.With(logx.String("comp", "notify")), a.store, adapter, a.bus, cooldown)

	// Providers, primary first.
	libreTimeout, err := config.ParseDurationField("providers.libre.timeout", cfg.Providers.Libre.Timeout)
	if err != nil {
		return err
	}
	providers := []provider.Provider{
		provider.NewLibre(provider.LibreConfig{
			BaseURL: cfg.Providers.Libre.BaseURL,
			APIKey:  cfg.Providers.Libre.APIKey,
			Timeout: libreTimeout,
		}),
	}
	if cfg.Providers.Google.Enabled {
		g, err := provider.NewGoogle(context.Background(), provider.GoogleConfig{
			CredentialsFile: cfg.Providers.Google.CredentialsFile,
		})
		if err != nil {
			return fmt.Errorf("google provider: %w", err)
		}
		a.google = g
		providers = append(providers, g)
	}
	chain := provider.NewChain(a.log.With(logx.String("comp", "chain")), a.bus, providers...)

	a.cache = cache.New(cacheTTL)
	a.dedup = dedup.New(dedupWindow)
	a.limiter = ratelimit.New()

	resolver := pipeline.NewResolver(a.dedup, a.limiter, a.cache, chain, a.notify, a.bus,
		a.log.With(logx.String("comp", "pipeline")))

	a.router = NewRouter(a.log.With(logx.String("comp", "router")), a.store, adapter, resolver, a.notify, Defaults{
		TargetLang: cfg.Limits.DefaultTargetLang,
		RateLimit:  cfg.Limits.DefaultRateLimit,
	})

	// Periodic maintenance: the pipeline stays correct without it, this
	// only bounds memory.
	schedule := cfg.Maintenance.Schedule
	if schedule == "" {
		schedule = defaultMaintenanceSchedule
	}
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(schedule, a.maintenance); err != nil {
		return fmt.Errorf("maintenance schedule %q: %w", schedule, err)
	}
	return nil
}

func (a *App) maintenance() {
	swept := a.cache.Cleanup()
	dropped := a.dedup.Sweep()
	users := a.limiter.Sweep()
	cooled := a.notify.PruneCooldowns()
	a.log.Debug("maintenance sweep",
		logx.Int("cache_removed", swept),
		logx.Int("dedup_removed", dropped),
		logx.Int("rate_windows_removed", users),
		logx.Int("cooldowns_removed", cooled),
	)
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.updates = make(chan transport.Update, 256)
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}

	// Each trigger is an independent unit of work; updates fan out onto
	// their own goroutines.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case up := <-a.updates:
				a.wg.Add(1)
				go func() {
					defer a.wg.Done()
					a.router.Handle(runCtx, up)
				}()
			}
		}
	}()

	// Config hot reload: re-apply logging on change.
	sub := a.cfgMgr.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg := <-sub:
				if cfg == nil {
					continue
				}
				a.logSvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
				})
			}
		}
	}()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	// Trace-level visibility into the pipeline via the bus.
	events, unsub := a.bus.Subscribe(64)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	}()

	a.cron.Start()
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.adapter != nil {
		_ = a.adapter.Stop(ctx)
	}
	cronDone := a.cron.Stop()

	// Drain in-flight triggers, bounded by the caller's deadline.
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
	}
	<-cronDone.Done()

	if a.google != nil {
		_ = a.google.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("stopped")
	return a.logSvc.Close()
}
