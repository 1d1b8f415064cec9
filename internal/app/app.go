package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rotabot/internal/bot"
	"rotabot/internal/clock"
	"rotabot/internal/config"
	"rotabot/internal/eventbus"
	"rotabot/internal/jobs"
	"rotabot/internal/notify"
	"rotabot/internal/rotation"
	"rotabot/internal/runtime/supervisor"
	"rotabot/internal/schedule"
	"rotabot/internal/storage"
	kit "rotabot/internal/transport"
	telegram "rotabot/internal/transport/telegram/adapter"
	"rotabot/internal/transport/telegram/router"
	logx "rotabot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor
	reg  *router.SupervisorRegistry

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	notif   *notify.Deliverer

	announcer *jobs.Announcer
	advancer  *jobs.Advancer

	cmdm *router.CommandManager

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout(cfg),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, base := logx.New(loggingConfig(cfg), ad)
	cfgm.SetLogger(base.With(logx.String("comp", "config")))
	log := base.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, base.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	notif := notify.New(notifyConfig(cfg), ad, base.With(logx.String("comp", "notify")), bus)

	// The rule is read from the live config on every query.
	resolver := schedule.NewResolver(schedule.RuleFunc(func() (schedule.Rule, error) {
		return cfgm.Get().Rule()
	}), store)
	rot := rotation.NewService(store)
	clk := clock.Real()

	ann := jobs.NewAnnouncer(jobs.AnnouncerDeps{
		Resolver:  resolver,
		Markers:   store,
		Roster:    rot,
		Directory: store,
		Sender:    notif,
		Settings:  func() jobs.AnnounceSettings { return announceSettings(cfgm.Get()) },
		Clock:     clk,
		Log:       base.With(logx.String("comp", "announce")),
		Bus:       bus,
	})
	adv := jobs.NewAdvancer(jobs.AdvancerDeps{
		Resolver: resolver,
		Markers:  store,
		Rotation: rot,
		Settings: func() jobs.AdvanceSettings { return advanceSettings(cfgm.Get()) },
		Clock:    clk,
		Log:      base.With(logx.String("comp", "advance")),
		Bus:      bus,
	})

	reg := router.NewSupervisorRegistry()
	b := bot.New(bot.Deps{
		Resolver:  resolver,
		Rotation:  rot,
		Directory: store,
		Announcer: ann,
		Advancer:  adv,
		Registry:  reg,
		Settings:  func() bot.Settings { return botSettings(cfgm.Get()) },
		Clock:     clk,
		Log:       base.With(logx.String("comp", "bot")),
	})

	cmdm := router.NewCommandManager(base, ad, router.Options{
		Workers:  cfg.Commands.Workers,
		Timeout:  commandTimeout(cfg),
		IsOwner:  func(id int64) bool { return cfgm.Get().IsOwner(id) },
		Registry: reg,
	})
	cmdm.Use(b.RememberSender())
	cmdm.SetRegistry(b.Commands())

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		reg:       reg,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		notif:     notif,
		announcer: ann,
		advancer:  adv,
		cmdm:      cmdm,
		updates:   make(chan kit.Update, 256),
	}, nil
}

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

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.reg.Set("app", a.sup)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.reg.Set("telegram.adapter", a.adapter.Supervisor())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	loopBackoff := supervisor.WithRestartBackoff(time.Second, time.Minute)
	a.sup.GoRestart("jobs.announce", a.announcer.Run, loopBackoff)
	a.sup.GoRestart("jobs.advance", a.advancer.Run, loopBackoff)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				// Debug only; announce and advance already log their outcome.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a reloaded config into the components that cache
// settings. Announce, advance, the rule and owner checks read the live
// config on each use and need nothing here.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Debug("config change summary", fields...)
	} else {
		a.log.Debug("config reload received, but no effective changes detected")
	}

	if restart := config.RestartRequired(oldCfg, newCfg); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.Strings("sections", restart))
	}

	a.logs.Apply(loggingConfig(newCfg))
	a.notif.Apply(notifyConfig(newCfg))
	a.cmdm.SetTimeout(commandTimeout(newCfg))

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so every loop starts unwinding while the steps run.
	a.sup.Cancel()

	// step bounds one shutdown action so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped; no time left", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 2*time.Second, a.adapter.Stop)
	// Loops finish their current write before storage closes.
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
