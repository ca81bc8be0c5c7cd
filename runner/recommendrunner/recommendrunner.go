package recommendrunner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/gosom/maps-recommender/gmaps"
	"github.com/gosom/maps-recommender/recommend"
	"github.com/gosom/maps-recommender/runner"
	"github.com/gosom/maps-recommender/tlmt"
)

type recommendRunner struct {
	cfg          *runner.Config
	log          *slog.Logger
	pipeline     *recommend.Pipeline
	descriptions []string
	out          io.Writer
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeRecommend {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	descriptions, err := cfg.ReadDescriptions()
	if err != nil {
		return nil, err
	}

	if len(descriptions) == 0 {
		return nil, fmt.Errorf("no restaurant descriptions found in %s", cfg.InputFile)
	}

	log := cfg.Logger()

	ans := recommendRunner{
		cfg:          cfg,
		log:          log,
		pipeline:     recommend.NewPipeline(cfg.LLMClient(log), cfg.PlacesClient(log), recommend.WithLogger(log)),
		descriptions: descriptions,
		out:          os.Stdout,
	}

	return &ans, nil
}

func (r *recommendRunner) Run(ctx context.Context) (err error) {
	var res *recommend.Result

	t0 := time.Now().UTC()

	defer func() {
		params := map[string]any{
			"descriptions": len(r.descriptions),
			"duration":     time.Now().UTC().Sub(t0).String(),
		}

		if res != nil {
			params["places"] = len(res.Aggregate)
			params["failures"] = len(res.Failures)
		}

		if err != nil {
			params["error"] = err.Error()
		}

		_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("recommend_runner", params))
	}()

	r.log.Info("starting recommendation", "descriptions", len(r.descriptions), "model", r.cfg.Model)

	res, err = r.pipeline.Run(ctx, r.descriptions, r.cfg.Preference)
	if err != nil {
		return err
	}

	return writeReport(r.out, res, r.log)
}

func (r *recommendRunner) Close(context.Context) error {
	return nil
}

// writeReport prints the recommendation followed by a short line per place
// that was considered and per place that was skipped.
func writeReport(w io.Writer, res *recommend.Result, log *slog.Logger) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Recommendation: %s\n", strings.TrimSpace(res.Recommendation))

	if len(res.Aggregate) > 0 {
		sb.WriteString("\nPlaces considered:\n")

		names := make([]string, 0, len(res.Aggregate))
		for name := range res.Aggregate {
			names = append(names, name)
		}

		slices.Sort(names)

		for _, name := range names {
			sb.WriteString("- " + placeLine(name, res.PlaceIDs[name], res.Aggregate[name], log) + "\n")
		}
	}

	if len(res.Failures) > 0 {
		sb.WriteString("\nSkipped:\n")

		for _, f := range res.Failures {
			fmt.Fprintf(&sb, "- %s (%s)\n", strings.TrimSpace(f.Name), f.Reason)
		}
	}

	_, err := io.WriteString(w, sb.String())

	return err
}

func placeLine(name, placeID string, raw []byte, log *slog.Logger) string {
	name = strings.TrimSpace(name)

	parts := []string{name}

	d, err := gmaps.ParsePlaceDetails(raw)
	if err != nil {
		log.Warn("could not parse place details", "name", name, "error", err)

		d = gmaps.PlaceDetails{}
	}

	if d.Result.FormattedAddress != "" {
		parts = append(parts, d.Result.FormattedAddress)
	}

	if d.Result.Rating > 0 {
		parts = append(parts, fmt.Sprintf("rating %.1f (%d)", d.Result.Rating, d.Result.UserRatingsTotal))
	}

	if code := d.PlusCode(); code != "" {
		parts = append(parts, "plus code "+code)
	}

	if placeID != "" {
		parts = append(parts, gmaps.PlaceIDURL(name, placeID))
	}

	return strings.Join(parts, " | ")
}
