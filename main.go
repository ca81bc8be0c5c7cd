package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gosom/maps-recommender/runner"
	"github.com/gosom/maps-recommender/runner/installrunner"
	"github.com/gosom/maps-recommender/runner/recommendrunner"
	"github.com/gosom/maps-recommender/runner/scraperunner"
	"github.com/gosom/maps-recommender/runner/webrunner"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	runner.Banner()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan

		fmt.Fprintln(os.Stderr, "received signal, shutting down")

		cancel()
	}()

	cfg := runner.ParseConfig()

	runnerInstance, err := runnerFactory(cfg)
	if err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, err)

		_ = runner.Telemetry().Close()

		os.Exit(1)
	}

	if err := runnerInstance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)

		_ = runnerInstance.Close(ctx)
		_ = runner.Telemetry().Close()

		cancel()

		os.Exit(1)
	}

	_ = runnerInstance.Close(ctx)
	_ = runner.Telemetry().Close()

	cancel()

	os.Exit(0)
}

func runnerFactory(cfg *runner.Config) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeScrape:
		return scraperunner.New(cfg)
	case runner.RunModeRecommend:
		return recommendrunner.New(cfg)
	case runner.RunModeWeb:
		return webrunner.New(cfg)
	case runner.RunModeInstallPlaywright:
		return installrunner.New(cfg)
	default:
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}
}
