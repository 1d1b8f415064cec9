package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/pflag"

	"rotabot/internal/app"
	"rotabot/internal/config"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath   string
		envPath   string
		initCfg   bool
		exportICS bool
		days      int
		showVer   bool
	)
	fs := pflag.NewFlagSet("rotabot", pflag.ContinueOnError)
	fs.StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to the config file (yaml, json or jsonc)")
	fs.StringVar(&envPath, "env-file", ".env", "dotenv file loaded before the config")
	fs.BoolVar(&initCfg, "init", false, "write a default config to --config and exit")
	fs.BoolVar(&exportICS, "export-ics", false, "print upcoming sessions as iCalendar and exit")
	fs.IntVar(&days, "days", 60, "days covered by --export-ics")
	fs.BoolVar(&showVer, "version", false, "print the version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVer {
		fmt.Println("rotabot", version)
		return nil
	}
	if initCfg {
		created, err := config.WriteDefault(cfgPath)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("%s already exists", cfgPath)
		}
		fmt.Println("wrote", cfgPath)
		return nil
	}

	if err := config.LoadDotEnv(envPath); err != nil {
		return fmt.Errorf("load %s: %w", envPath, err)
	}

	if exportICS {
		return app.ExportICS(context.Background(), cfgPath, days, time.Now(), os.Stdout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdog(ctx)

	var reason app.StopReason
	select {
	case sig := <-sigs:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	return a.Err()
}

// watchdog pings systemd at half the WatchdogSec interval, when one is set.
func watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
