package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"statusbot/internal/config"
	"statusbot/internal/runtime/supervisor"
	"statusbot/internal/source/httpsource"
	"statusbot/internal/storage"
	"statusbot/internal/transport/telegram"
	"statusbot/internal/watch"
	logx "statusbot/pkg/logx"
	"statusbot/pkg/systemd"
)

// Options selects the config sources. Source, Notifier and Clock replace the
// HTTP source, the Telegram notifier and the wall clock when set.
type Options struct {
	ConfigPath string
	EnvPath    string
	// Environ replaces the process environment for the config overlay.
	Environ map[string]string

	Source   watch.Source
	Notifier watch.Notifier
	Clock    watch.Clock
}

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store
	loop  *watch.Loop
	sd    systemd.Notifier
}

// New loads and validates the configuration and builds every component.
// Configuration problems are returned as *watch.Error of kind ConfigurationError.
func New(opts Options) (*App, error) {
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "app"))

	if loaded, err := config.LoadDotEnv(opts.EnvPath); err != nil {
		return nil, configError(fmt.Errorf("load %s: %w", opts.EnvPath, err))
	} else if loaded {
		bootLog.Debug("environment file loaded", logx.String("path", opts.EnvPath))
	}

	cfgm := config.NewConfigManager(opts.ConfigPath)
	if opts.Environ != nil {
		cfgm.SetEnviron(opts.Environ)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, configError(err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	notifier := opts.Notifier
	if notifier == nil {
		ncfg, err := mapNotifierConfig(cfg)
		if err != nil {
			return nil, configError(err)
		}
		tn, err := telegram.New(ncfg)
		if err != nil {
			return nil, configError(err)
		}
		notifier = tn
	}

	// The Telegram log sink posts to the same chat as the notifications.
	logSvc, log := logx.New(mapLogConfig(cfg), notifier.Deliver)
	log = log.With(logx.String("comp", "app"))

	var store storage.Store
	fail := func(err error) (*App, error) {
		if store != nil {
			_ = store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return fail(configError(err))
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return fail(err)
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	src := opts.Source
	if src == nil {
		scfg, err := mapSourceConfig(cfg)
		if err != nil {
			return fail(configError(err))
		}
		hs, err := httpsource.New(scfg, nil, log.With(logx.String("comp", "source")))
		if err != nil {
			return fail(configError(err))
		}
		src = hs
	}

	settings, cadence, err := mapSettings(cfg)
	if err != nil {
		return fail(configError(err))
	}

	a := &App{cfgm: cfgm, log: log, logs: logSvc, store: store}

	var st watch.StateStore
	if store != nil {
		st = store
	}
	loop, err := watch.New(watch.Options{
		Source:   src,
		Notifier: notifier,
		Clock:    opts.Clock,
		Store:    st,
		Log:      log.With(logx.String("comp", "watch")),
		OnTick:   a.onTick,
	}, settings)
	if err != nil {
		return fail(err)
	}
	a.loop = loop

	log.Info("configured",
		logx.String("endpoint", strings.TrimSpace(cfg.Source.Endpoint)),
		logx.String("cadence", cadence),
		logx.Int("verdicts", len(cfg.Verdicts)),
		logx.Bool("hold_cursor_on_delivery_failure", cfg.Poll.HoldCursorOnDeliveryFailure),
	)
	return a, nil
}

func configError(err error) error {
	if watch.KindOf(err) == watch.ConfigurationError {
		return err
	}
	return &watch.Error{Kind: watch.ConfigurationError, Cause: err}
}

func (a *App) Logger() logx.Logger { return a.log }

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

func (a *App) restore(ctx context.Context) {
	if err := a.loop.Restore(ctx); err != nil {
		a.log.Warn("state restore failed; starting from the current time", logx.Err(err))
	}
}

// RunOnce performs a single iteration and returns its outcome.
func (a *App) RunOnce(ctx context.Context) watch.Outcome {
	a.restore(ctx)
	return a.loop.Tick(ctx)
}

// Start launches the watch loop and the config watcher under a supervisor.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.ValidateReloadable(cfg); err != nil {
			return err
		}
		_, _, err := mapSettings(cfg)
		return err
	})

	a.restore(a.sup.Context())
	a.log.Info("app started", logx.Int64("cursor", a.loop.Cursor()))

	// Run only returns an error if it panicked; restart it in place so the
	// cursor and last message survive.
	a.sup.GoRestart("watch.loop", a.loop.Run, supervisor.WithRestartBackoff(time.Second, time.Minute))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if ok, err := a.sd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified", logx.String("state", "ready"), logx.Duration("watchdog", systemd.WatchdogInterval()))
	}
	return nil
}

func (a *App) onTick(out watch.Outcome) {
	_, _ = a.sd.Watchdog()
	status := fmt.Sprintf("cursor=%d phase=%s", out.Cursor, out.Phase)
	if out.Failed() {
		status += " error=" + out.Kind().String()
	}
	_, _ = a.sd.Status(status)
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	// Track last applied config to generate a safe diff summary for logs.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
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
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))

	settings, _, err := mapSettings(newCfg)
	if err == nil {
		err = a.loop.Apply(settings)
	}
	if err != nil {
		a.log.Warn("invalid loop settings; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop cancels the supervisor, waits for an in-flight iteration to finish
// and releases storage and log sinks.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = a.sd.Stopping()

	var err error
	if a.sup != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
		err = a.sup.Stop(waitCtx)
		cancel()
		if err != nil && waitCtx.Err() != nil {
			a.log.Warn("stop deadline reached (continuing)", logx.Err(err))
		}
	}
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			a.log.Warn("storage close failed", logx.Err(cerr))
		}
	}

	a.log.Info("stopped", logx.Int64("cursor", a.loop.Cursor()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
