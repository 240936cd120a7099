package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"statusbot/internal/app"
	"statusbot/internal/watch"
	logx "statusbot/pkg/logx"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		cfgPath     string
		envPath     string
		once        bool
		showVersion bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json); may be absent")
	flag.StringVar(&envPath, "env", ".env", "path to a .env file; may be absent")
	flag.BoolVar(&once, "once", false, "run a single poll iteration and exit")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("statusbot", version)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(app.Options{ConfigPath: cfgPath, EnvPath: envPath})
	if err != nil {
		var we *watch.Error
		if errors.As(err, &we) && we.Kind.Fatal() {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		} else {
			fmt.Fprintln(os.Stderr, "fatal start:", err)
		}
		os.Exit(1)
	}
	log := a.Logger()

	if once {
		out := a.RunOnce(ctx)
		_ = a.Stop(context.Background(), app.StopOnce)
		if out.Failed() {
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		log.Error("start failed", logx.Err(err))
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Minute)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil || reason == app.StopFatalError {
		os.Exit(1)
	}
}
