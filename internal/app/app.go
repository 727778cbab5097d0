package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"feedbridge/internal/config"
	"feedbridge/internal/eventbus"
	"feedbridge/internal/feedsync"
	"feedbridge/internal/httpapi"
	"feedbridge/internal/notifier"
	rtsup "feedbridge/internal/runtime/supervisor"
	"feedbridge/internal/source"
	"feedbridge/internal/storage"
	"feedbridge/internal/task/scheduler"
	"feedbridge/internal/transport"
	"feedbridge/internal/transport/telegram"
	"feedbridge/internal/transport/webhook"
	logx "feedbridge/pkg/logx"
)

// SyncJob is the scheduler entry that drives sync cycles.
const SyncJob = "sync"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	reg  *prometheus.Registry

	store  storage.Store
	source source.Fetcher
	tg     *telegram.Adapter // nil when no bot token is configured
	sender transport.Sender

	notif *notifier.Service
	sync  *feedsync.Service
	sched *scheduler.Service
	http  *httpapi.Service
}

// New loads cfgPath and wires every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg)
}

func build(cfgm *config.ConfigManager, cfg *config.Config) (*App, error) {
	d, err := cfg.Durations()
	if err != nil {
		return nil, err
	}

	// The bot is needed for delivery, log forwarding or commands.
	var tg *telegram.Adapter
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
		tg, err = telegram.New(telegramConfig(cfg, d), bootLog)
		if err != nil {
			return nil, err
		}
	}

	var chat logx.ChatSender
	if tg != nil {
		chat = tg
	}
	logSvc, root := logx.New(logConfig(cfg), chat)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	store, err := storage.Open(storageConfig(cfg, d), root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	src, err := source.New(sourceConfig(cfg, d), root.With(logx.String("comp", "source")))
	if err != nil {
		return fail(err)
	}

	var sender transport.Sender
	switch cfg.Transport() {
	case config.TransportWebhook:
		wh, err := webhook.New(webhookConfig(cfg, d), root.With(logx.String("comp", "webhook")))
		if err != nil {
			return fail(err)
		}
		sender = wh
	default:
		if tg == nil {
			return fail(errors.New("telegram transport selected but telegram.token is empty"))
		}
		sender = tg
	}
	notif := notifier.New(notifierConfig(cfg, d), sender, root.With(logx.String("comp", "notifier")), bus)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	syncSvc, err := feedsync.New(feedsync.Options{
		Source:   src,
		Store:    store,
		Deliver:  notif.Deliver,
		Tunables: tunables(cfg, d),
		Log:      root,
		Bus:      bus,
		Metrics:  feedsync.NewMetrics(reg),
	})
	if err != nil {
		return fail(err)
	}

	a := &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		reg:    reg,
		store:  store,
		source: src,
		tg:     tg,
		sender: sender,
		notif:  notif,
		sync:   syncSvc,
	}

	a.sched = scheduler.New(schedulerConfig(cfg), root.With(logx.String("comp", "scheduler")), bus)
	if err := a.sched.Add(SyncJob, cfg.Sync.Schedule, d.SyncTimeout, a.syncJob); err != nil {
		return fail(fmt.Errorf("sync.schedule: %w", err))
	}

	a.http = httpapi.New(httpConfig(cfg, d), httpapi.Deps{
		Sync:     syncSvc,
		Source:   src,
		Info:     a.info,
		MaxLen:   func() int { return syncSvc.Tunables().MaxContentLen },
		Gatherer: reg,
	}, root.With(logx.String("comp", "http")))

	if tg != nil {
		tg.OnCommand(a.handleCommand)
	}
	return a, nil
}

// syncJob is the scheduled entry point. A cycle already in flight (manual
// trigger or chat command) makes this tick a no-op.
func (a *App) syncJob(ctx context.Context) error {
	_, err := a.sync.TryRun(ctx)
	if errors.Is(err, feedsync.ErrBusy) {
		a.log.Debug("sync cycle in progress; tick skipped")
		return nil
	}
	return err
}

func (a *App) info() httpapi.Info {
	cfg := a.cfgm.Get()
	out := httpapi.Info{NextRun: a.sched.NextRun(SyncJob), Runtime: a.sup.Snapshot()}
	if cfg != nil {
		out.SourceURL = cfg.Source.URL
		out.Schedule = cfg.Sync.Schedule
	}
	return out
}

// Sync exposes the sync service (CLI one-shots and tests).
func (a *App) Sync() *feedsync.Service { return a.sync }

// Registry is the prometheus registry backing /metrics.
func (a *App) Registry() *prometheus.Registry { return a.reg }

// HTTPAddr is the bound API address, empty when the API is off.
func (a *App) HTTPAddr() string { return a.http.Addr() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// CheckOnce loads state and runs a single cycle without starting any
// background service. Call Close afterwards.
func (a *App) CheckOnce(ctx context.Context) (feedsync.CycleResult, error) {
	if err := a.sync.Load(ctx); err != nil {
		return feedsync.CycleResult{}, err
	}
	return a.sync.Run(ctx)
}

// Close releases resources of an app that was never started.
func (a *App) Close() error {
	a.sync.Close()
	err := a.store.Close()
	_ = a.logs.Close()
	return err
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)

	if err := a.sync.Load(c); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	st := a.sync.Status()
	a.log.Info("state loaded", logx.Int("items", st.Total), logx.Int("pending", st.Pending))

	if a.tg != nil {
		if err := a.tg.Start(c); err != nil {
			return err
		}
	}

	a.sched.Start(c)
	a.http.Start(c)

	if cfg := a.cfgm.Get(); cfg != nil && cfg.Sync.RunOnStart {
		a.runNow()
	}

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.String("source", a.sourceURL()),
		logx.String("transport", a.sender.Name()),
		logx.String("http", a.http.Addr()),
	)
	return nil
}

// runNow starts a cycle immediately: through the scheduler when it is
// running so the run shows up in its snapshot, otherwise on the supervisor.
func (a *App) runNow() {
	if err := a.sched.Trigger(SyncJob); err == nil {
		return
	}
	a.sup.Go0("sync.run_on_start", func(c context.Context) {
		if err := a.syncJob(c); err != nil {
			a.log.Warn("startup sync failed", logx.Err(err))
		}
	})
}

func (a *App) sourceURL() string {
	if cfg := a.cfgm.Get(); cfg != nil {
		return cfg.Source.URL
	}
	return ""
}

// validateReload rejects configs the running app could not apply.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	if cfg.Transport() == config.TransportTelegram && a.tg == nil {
		return errors.New("delivery.transport: telegram needs a restart with telegram.token set")
	}
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	change := config.SummarizeChange(oldCfg, newCfg)
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Attrs...)
	a.log.Debug("config change summary", fields...)
	if len(change.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(change.RestartRequired, ",")))
	}

	d, err := newCfg.Durations()
	if err != nil {
		a.log.Warn("invalid durations; keeping previous config", logx.Err(err))
		return
	}

	a.logs.Apply(logConfig(newCfg))
	a.sync.SetTunables(tunables(newCfg, d))
	a.notif.Apply(notifierConfig(newCfg, d))

	if oldCfg == nil || oldCfg.Sync.Schedule != newCfg.Sync.Schedule || oldCfg.Sync.Timeout != newCfg.Sync.Timeout {
		if err := a.sched.Add(SyncJob, newCfg.Sync.Schedule, d.SyncTimeout, a.syncJob); err != nil {
			a.log.Warn("invalid sync schedule; keeping previous", logx.Err(err))
		}
	}

	prevEnabled := a.sched.Enabled()
	a.sched.Apply(schedulerConfig(newCfg))
	switch nowEnabled := newCfg.Scheduler.IsEnabled(); {
	case prevEnabled && !nowEnabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !prevEnabled && nowEnabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	a.http.Reconfigure(ctx, httpConfig(newCfg, d))

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()
	a.sync.Close()

	a.step(ctx, "http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	// The scheduler waits for the in-flight cycle, which persists its
	// progress before returning.
	a.step(ctx, "scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "telegram", 3*time.Second, func(c context.Context) error {
		if a.tg != nil {
			return a.tg.Stop(c)
		}
		return nil
	})
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
