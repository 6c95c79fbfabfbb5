// Package app wires configuration, the push channel, the job store, the
// dispatcher, and the HTTP surface into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"linebell/internal/adapters/line"
	"linebell/internal/adapters/telegram"
	"linebell/internal/config"
	"linebell/internal/directory"
	"linebell/internal/dispatch"
	"linebell/internal/eventbus"
	"linebell/internal/httpapi"
	"linebell/internal/jobs"
	"linebell/internal/observability/pprof"
	"linebell/internal/runtime/supervisor"
	"linebell/internal/store"
	"linebell/internal/transport"
	logx "linebell/pkg/logx"
)

type App struct {
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	sup  *supervisor.Supervisor
	bus  eventbus.Bus
	st   store.Store
	dir  *directory.Directory
	disp *dispatch.Service
	api  *httpapi.Server
	prof *pprof.Service
}

// New loads the config and builds every component. Nothing runs yet.
func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	sender, replier, err := buildChannel(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
		Push: logx.PushConfig{
			Enabled:    cfg.Logging.Push.Enabled,
			Recipient:  cfg.Logging.Push.Recipient,
			MinLevel:   cfg.Logging.Push.MinLevel,
			RatePerSec: cfg.Logging.Push.RatePerSec,
		},
	}, sender)
	mgr.SetLogger(log)

	busyTimeout, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busyTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	dir, err := directory.Open(cfg.Directory.Path, log)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open directory: %w", err)
	}

	repo := jobs.NewRepo(st)
	jobSvc := jobs.NewService(repo, dir, sender, log)

	dispCfg, err := parseDispatch(cfg.Dispatch)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	bus := eventbus.New()
	disp := dispatch.New(dispCfg, repo, sender, bus, log)

	apiCfg, err := parseHTTP(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &App{
		mgr:    mgr,
		logSvc: logSvc,
		log:    log,
		bus:    bus,
		st:     st,
		dir:    dir,
		disp:   disp,
	}
	a.api = httpapi.New(apiCfg, jobSvc, dir, disp, replier, nil, log)
	if cfg.Pprof != nil {
		a.prof = pprof.New(pprof.Config{Enabled: cfg.Pprof.Enabled, Addr: cfg.Pprof.Addr}, log)
	}
	return a, nil
}

// buildChannel picks the push driver. LINE also yields a replier for the
// webhook; telegram is push-only.
func buildChannel(cfg *config.Config) (transport.Sender, transport.Replier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Channel)) {
	case "", "line":
		ad, err := line.New(line.Config{
			ChannelToken: cfg.Line.ChannelToken,
			APIBase:      cfg.Line.APIBase,
		}, logx.Nop())
		if err != nil {
			return nil, nil, err
		}
		return ad, ad, nil
	case "telegram":
		if cfg.Telegram == nil {
			return nil, nil, errors.New("channel is telegram but telegram config is missing")
		}
		ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token}, logx.Nop())
		if err != nil {
			return nil, nil, err
		}
		return ad, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown channel %q", cfg.Channel)
	}
}

func parseDispatch(dc config.DispatchConfig) (dispatch.Config, error) {
	tick, err := config.ParseDurationOrDefault("dispatch.tick", dc.Tick, 60*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("dispatch.send_timeout", dc.SendTimeout, 10*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Tick:        tick,
		SendTimeout: sendTimeout,
		MaxInflight: dc.MaxInflight,
		RatePerSec:  dc.RatePerSec,
	}, nil
}

func parseHTTP(cfg *config.Config) (httpapi.Config, error) {
	read, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 30*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", cfg.HTTP.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	isLine := cfg.Channel == "" || strings.EqualFold(cfg.Channel, "line")
	return httpapi.Config{
		Addr:          cfg.HTTP.Addr,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
		ReplyEnabled:  isLine && cfg.Line.ReplyEnabled,
		ChannelSecret: cfg.Line.ChannelSecret,
	}, nil
}

// Start launches the background services under a supervisor bound to ctx.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))
	a.api.SetSupervisor(a.sup)

	// Hot reload: the watcher self-heals under restart backoff; applied
	// changes are limited to logging, everything else needs a restart.
	a.sup.GoRestart("config.watch", a.mgr.Watch)
	updates := a.mgr.Subscribe(1)
	a.sup.Go("config.apply", func(ctx context.Context) error {
		defer a.mgr.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				a.logSvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
					Push: logx.PushConfig{
						Enabled:    cfg.Logging.Push.Enabled,
						Recipient:  cfg.Logging.Push.Recipient,
						MinLevel:   cfg.Logging.Push.MinLevel,
						RatePerSec: cfg.Logging.Push.RatePerSec,
					},
				})
				a.log.Info("logging config applied")
			}
		}
	})

	// Event audit trail. Dispatch publishes per-tick and per-failure events;
	// keeping a drain here means slow external subscribers never matter.
	events, unsub := a.bus.Subscribe(64)
	a.sup.Go("events.drain", func(ctx context.Context) error {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
			}
		}
	})

	if a.prof != nil {
		if err := a.prof.Start(); err != nil {
			a.log.Error("pprof start failed", logx.Err(err))
		}
	}

	a.disp.Start()
	a.sup.Go("http.serve", func(ctx context.Context) error {
		return a.api.Serve()
	})

	a.log.Info("linebell started")
	return nil
}

// Stop shuts down in dependency order: stop accepting requests, finish the
// in-flight tick so its store write commits, then release everything else.
func (a *App) Stop(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := a.api.Shutdown(sctx); err != nil {
		a.log.Warn("http shutdown", logx.Err(err))
	}
	a.disp.Stop()
	if a.prof != nil {
		a.prof.Stop(sctx)
	}

	var errs []error
	if a.sup != nil {
		if err := a.sup.Stop(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			errs = append(errs, err)
		}
	}
	if err := a.st.Close(); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("linebell stopped")
	_ = a.logSvc.Close()
	return errors.Join(errs...)
}
