package webrunner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gosom/maps-recommender/recommend"
	"github.com/gosom/maps-recommender/runner"
	"github.com/gosom/maps-recommender/tlmt"
	"github.com/gosom/maps-recommender/web"
)

type webrunner struct {
	srv *web.Server
	cfg *runner.Config
	log *slog.Logger
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeWeb {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	log := cfg.Logger()

	places := cfg.PlacesClient(log)
	completer := cfg.LLMClient(log)

	srv, err := web.New(cfg.Addr, web.ServerOptions{
		Places:      places,
		Completer:   completer,
		Recommender: recommend.NewPipeline(completer, places, recommend.WithLogger(log)),
		Scraper:     cfg.ListScraper(log),
		Logger:      log,
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
	})
	if err != nil {
		return nil, err
	}

	ans := webrunner{
		srv: srv,
		cfg: cfg,
		log: log,
	}

	return &ans, nil
}

func (w *webrunner) Run(ctx context.Context) error {
	t0 := time.Now().UTC()

	egroup, ctx := errgroup.WithContext(ctx)

	egroup.Go(func() error {
		return w.srv.Start(ctx)
	})

	egroup.Go(func() error {
		_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("web_runner", map[string]any{
			"event": "start",
			"model": w.cfg.Model,
		}))

		<-ctx.Done()

		uptime := time.Now().UTC().Sub(t0)

		w.log.Info("web runner stopping", "uptime", uptime.String())

		_ = runner.Telemetry().Send(context.WithoutCancel(ctx), tlmt.NewEvent("web_runner", map[string]any{
			"event":  "stop",
			"uptime": uptime.String(),
		}))

		return nil
	})

	return egroup.Wait()
}

func (w *webrunner) Close(context.Context) error {
	return nil
}
