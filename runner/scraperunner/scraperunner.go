package scraperunner

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gosom/maps-recommender/gmaps"
	"github.com/gosom/maps-recommender/runner"
	"github.com/gosom/maps-recommender/tlmt"
)

type scrapeRunner struct {
	cfg     *runner.Config
	log     *slog.Logger
	scraper *gmaps.ListScraper
	out     io.Writer
	outfile *os.File
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeScrape {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	log := cfg.Logger()

	ans := &scrapeRunner{
		cfg:     cfg,
		log:     log,
		scraper: cfg.ListScraper(log),
	}

	if err := ans.setOutput(); err != nil {
		return nil, err
	}

	return ans, nil
}

func (r *scrapeRunner) Run(ctx context.Context) (err error) {
	var n int

	t0 := time.Now().UTC()

	defer func() {
		params := map[string]any{
			"layout":      string(r.scraper.Layout()),
			"restaurants": n,
			"duration":    time.Now().UTC().Sub(t0).String(),
		}

		if err != nil {
			params["error"] = err.Error()
		}

		_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("scrape_runner", params))
	}()

	if r.scraper.Layout() == gmaps.LayoutLocation {
		locations := r.scraper.ScrapeLocations(ctx, r.cfg.URL)
		n = len(locations)

		r.log.Info("writing results", "restaurants", n, "results", r.cfg.ResultsFile)

		return writeResults(r.out, locations, r.cfg.JSON)
	}

	restaurants := r.scraper.Scrape(ctx, r.cfg.URL)
	n = len(restaurants)

	r.log.Info("writing results", "restaurants", n, "results", r.cfg.ResultsFile)

	return writeResults(r.out, restaurants, r.cfg.JSON)
}

func (r *scrapeRunner) Close(context.Context) error {
	if r.outfile != nil {
		return r.outfile.Close()
	}

	return nil
}

func (r *scrapeRunner) setOutput() error {
	if r.cfg.ResultsFile == "stdout" || r.cfg.ResultsFile == "" {
		r.out = os.Stdout

		return nil
	}

	f, err := os.Create(r.cfg.ResultsFile)
	if err != nil {
		return err
	}

	r.outfile = f
	r.out = f

	// Write UTF-8 BOM for proper encoding detection in Excel and other applications
	if !r.cfg.JSON {
		if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write UTF-8 BOM: %w", err)
		}
	}

	return nil
}

// csvRecord is a scraped record that can be written as a CSV row.
type csvRecord interface {
	gmaps.Restaurant | gmaps.RestaurantLocation

	CsvHeaders() []string
	CsvRow() []string
}

func writeResults[T csvRecord](w io.Writer, records []T, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)

		if records == nil {
			records = []T{}
		}

		return enc.Encode(records)
	}

	cw := csv.NewWriter(w)

	var zero T

	if err := cw.Write(zero.CsvHeaders()); err != nil {
		return err
	}

	for i := range records {
		if err := cw.Write(records[i].CsvRow()); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}
