package runner

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/gosom/maps-recommender/gmaps"
	"github.com/gosom/maps-recommender/llm"
	"github.com/gosom/maps-recommender/tlmt"
	"github.com/gosom/maps-recommender/tlmt/gonoop"
	"github.com/gosom/maps-recommender/tlmt/goposthog"
)

const (
	RunModeScrape = iota + 1
	RunModeRecommend
	RunModeWeb
	RunModeInstallPlaywright
)

var (
	ErrInvalidRunMode = errors.New("invalid run mode")
)

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

// EnvConfig holds the secrets and endpoints read from the environment.
// A .env file in the working directory is loaded first when present.
type EnvConfig struct {
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	GoogleAPIKey     string `env:"GOOGLE_API_KEY"`
	GoogleMapsAPIKey string `env:"GOOGLE_MAPS_API_KEY"`
	PlacesFindURL    string `env:"PLACES_FIND_URL"`
	PlacesDetailsURL string `env:"PLACES_DETAILS_URL"`
	DisableTelemetry bool   `env:"DISABLE_TELEMETRY"`
	PostHogAPIKey    string `env:"POSTHOG_API_KEY"`
	PostHogEndpoint  string `env:"POSTHOG_ENDPOINT" env-default:"https://eu.i.posthog.com"`
	Selectors        SelectorEnv
}

// SelectorEnv overrides the listing selectors. Empty values keep the
// defaults of the selected layout.
type SelectorEnv struct {
	Article  string `env:"SELECTOR_ARTICLE"`
	Name     string `env:"SELECTOR_NAME"`
	Rating   string `env:"SELECTOR_RATING"`
	Reviews  string `env:"SELECTOR_REVIEWS"`
	Details  string `env:"SELECTOR_DETAILS"`
	Location string `env:"SELECTOR_LOCATION"`
}

func (s SelectorEnv) FieldSelectors() gmaps.FieldSelectors {
	return gmaps.FieldSelectors(s)
}

// PlacesAPIKey prefers GOOGLE_API_KEY and falls back to GOOGLE_MAPS_API_KEY.
func (e *EnvConfig) PlacesAPIKey() string {
	if e.GoogleAPIKey != "" {
		return e.GoogleAPIKey
	}

	return e.GoogleMapsAPIKey
}

type Config struct {
	RunMode             int
	URL                 string
	Layout              gmaps.Layout
	InputFile           string
	Preference          string
	ResultsFile         string
	JSON                bool
	Debug               bool
	Addr                string
	ScrollSettle        time.Duration
	ScrollMaxIterations int
	ScrollMaxDuration   time.Duration
	ContainerTimeout    time.Duration
	ConsentTimeout      time.Duration
	HTTPTimeout         time.Duration
	Model               string
	RunID               string
	Env                 EnvConfig
}

func ParseConfig() *Config {
	// a missing .env file is fine
	_ = godotenv.Load()

	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		panic(err)
	}

	return cfg
}

func parseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Config{
		RunID: uuid.NewString(),
	}

	if err := cleanenv.ReadEnv(&cfg.Env); err != nil {
		return nil, fmt.Errorf("could not read environment: %w", err)
	}

	if os.Getenv("PLAYWRIGHT_INSTALL_ONLY") == "1" {
		cfg.RunMode = RunModeInstallPlaywright

		return &cfg, nil
	}

	var mode, layout string

	def := gmaps.DefaultScrollPolicy()

	fs.StringVar(&mode, "mode", "", "run mode: scrape, recommend, web or install [default: derived from -url/-input, else web]")
	fs.StringVar(&cfg.URL, "url", "", "google maps listing url to scrape")
	fs.StringVar(&layout, "layout", string(gmaps.LayoutRatings), "listing record shape: ratings (name, rating, reviews, details) or location (name, location)")
	fs.StringVar(&cfg.InputFile, "input", "", "file with one restaurant description per line, - for stdin")
	fs.StringVar(&cfg.Preference, "preference", "", "free text preference used to pick a restaurant")
	fs.StringVar(&cfg.ResultsFile, "results", "stdout", "path to the results file [default: stdout]")
	fs.BoolVar(&cfg.JSON, "json", true, "produce JSON output instead of CSV")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable headful browser and debug logging")
	fs.StringVar(&cfg.Addr, "addr", ":8080", "address to listen on for web server")
	fs.DurationVar(&cfg.ScrollSettle, "scroll-settle", def.Settle, "wait after each scroll before measuring the feed height")
	fs.IntVar(&cfg.ScrollMaxIterations, "scroll-max-iterations", def.MaxIterations, "maximum scroll commands per listing")
	fs.DurationVar(&cfg.ScrollMaxDuration, "scroll-max-duration", def.MaxDuration, "maximum time spent scrolling a listing")
	fs.DurationVar(&cfg.ContainerTimeout, "container-timeout", 60*time.Second, "how long to wait for the results feed")
	fs.DurationVar(&cfg.ConsentTimeout, "consent-timeout", 10*time.Second, "how long to look for the cookie consent button")
	fs.DurationVar(&cfg.HTTPTimeout, "http-timeout", 60*time.Second, "timeout for Places and completion requests")
	fs.StringVar(&cfg.Model, "model", llm.DefaultModel, "chat completion model")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error

	cfg.Layout, err = gmaps.ParseLayout(layout)
	if err != nil {
		return nil, err
	}

	switch mode {
	case "scrape":
		cfg.RunMode = RunModeScrape
	case "recommend":
		cfg.RunMode = RunModeRecommend
	case "web":
		cfg.RunMode = RunModeWeb
	case "install":
		cfg.RunMode = RunModeInstallPlaywright
	case "":
		switch {
		case cfg.URL != "":
			cfg.RunMode = RunModeScrape
		case cfg.InputFile != "":
			cfg.RunMode = RunModeRecommend
		default:
			cfg.RunMode = RunModeWeb
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRunMode, mode)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.ScrollSettle < 0:
		return errors.New("scroll-settle must not be negative")
	case c.ScrollMaxIterations < 1:
		return errors.New("scroll-max-iterations must be greater than 0")
	case c.ScrollMaxDuration <= 0:
		return errors.New("scroll-max-duration must be greater than 0")
	case c.ContainerTimeout <= 0:
		return errors.New("container-timeout must be greater than 0")
	case c.ConsentTimeout <= 0:
		return errors.New("consent-timeout must be greater than 0")
	case c.HTTPTimeout <= 0:
		return errors.New("http-timeout must be greater than 0")
	}

	switch c.RunMode {
	case RunModeScrape:
		if c.URL == "" {
			return errors.New("url must be provided in scrape mode")
		}
	case RunModeRecommend:
		if c.InputFile == "" {
			return errors.New("input must be provided in recommend mode")
		}

		if strings.TrimSpace(c.Preference) == "" {
			return errors.New("preference must be provided in recommend mode")
		}
	}

	return nil
}

func (c *Config) ScrollPolicy() gmaps.ScrollPolicy {
	return gmaps.ScrollPolicy{
		Settle:        c.ScrollSettle,
		MaxIterations: c.ScrollMaxIterations,
		MaxDuration:   c.ScrollMaxDuration,
	}
}

// Logger returns a text logger on stderr tagged with the run id.
func (c *Config) Logger() *slog.Logger {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).
		With("run_id", c.RunID)
}

func (c *Config) ListScraper(log *slog.Logger) *gmaps.ListScraper {
	launch := gmaps.PlaywrightLauncher(gmaps.BrowserOptions{
		Headfull:          c.Debug,
		DisableImages:     true,
		NavigationTimeout: c.ContainerTimeout,
	})

	return gmaps.NewListScraper(launch,
		gmaps.WithLayout(c.Layout),
		gmaps.WithFieldSelectors(c.Env.Selectors.FieldSelectors()),
		gmaps.WithScrollPolicy(c.ScrollPolicy()),
		gmaps.WithContainerTimeout(c.ContainerTimeout),
		gmaps.WithConsentTimeout(c.ConsentTimeout),
		gmaps.WithLogger(log),
	)
}

func (c *Config) PlacesClient(log *slog.Logger) *gmaps.PlacesClient {
	return gmaps.NewPlacesClient(c.Env.PlacesAPIKey(),
		gmaps.WithFindPlaceURL(c.Env.PlacesFindURL),
		gmaps.WithPlaceDetailsURL(c.Env.PlacesDetailsURL),
		gmaps.WithHTTPClient(&http.Client{Timeout: c.HTTPTimeout}),
		gmaps.WithPlacesLogger(log),
	)
}

func (c *Config) LLMClient(log *slog.Logger) *llm.Client {
	return llm.New(c.Env.OpenAIAPIKey,
		llm.WithBaseURL(c.Env.OpenAIBaseURL),
		llm.WithModel(c.Model),
		llm.WithHTTPClient(&http.Client{Timeout: c.HTTPTimeout}),
		llm.WithLogger(log),
	)
}

// ReadDescriptions reads one description per line from the input file, or
// from stdin when the path is "-". Blank lines are skipped.
func (c *Config) ReadDescriptions() ([]string, error) {
	var r io.Reader

	if c.InputFile == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(c.InputFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		r = f
	}

	return readLines(r)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read descriptions: %w", err)
	}

	return lines, nil
}

var (
	telemetryOnce sync.Once
	telemetry     tlmt.Telemetry
)

func Telemetry() tlmt.Telemetry {
	telemetryOnce.Do(func() {
		var env EnvConfig

		if err := cleanenv.ReadEnv(&env); err != nil || env.DisableTelemetry || env.PostHogAPIKey == "" {
			telemetry = gonoop.New()

			return
		}

		val, err := goposthog.New(env.PostHogAPIKey, env.PostHogEndpoint)
		if err != nil || val == nil {
			telemetry = gonoop.New()

			return
		}

		telemetry = val
	})

	return telemetry
}

// wrapText breaks text into lines of at most width display cells. Wide
// runes count double.
func wrapText(text string, width int) []string {
	var (
		lines []string
		line  strings.Builder
		used  int
	)

	for _, r := range text {
		w := runewidth.RuneWidth(r)

		if used+w > width && line.Len() > 0 {
			lines = append(lines, line.String())
			line.Reset()

			used = 0
		}

		line.WriteRune(r)

		used += w
	}

	if line.Len() > 0 {
		lines = append(lines, line.String())
	}

	return lines
}

func banner(messages []string, width int) string {
	if width <= 0 {
		var err error

		width, _, err = term.GetSize(int(os.Stderr.Fd()))
		if err != nil {
			width = 80
		}
	}

	if width < 20 {
		width = 20
	}

	contentWidth := width - 4

	var wrappedLines []string
	for _, message := range messages {
		wrappedLines = append(wrappedLines, wrapText(message, contentWidth)...)
	}

	var builder strings.Builder

	builder.WriteString("╔" + strings.Repeat("═", width-2) + "╗\n")

	for _, line := range wrappedLines {
		paddingRight := max(contentWidth-runewidth.StringWidth(line), 0)

		builder.WriteString(fmt.Sprintf("║ %s%s ║\n", line, strings.Repeat(" ", paddingRight)))
	}

	builder.WriteString("╚" + strings.Repeat("═", width-2) + "╝\n")

	return builder.String()
}

func Banner() {
	message1 := "🍜 Maps Recommender"
	message2 := "Scrapes Google Maps listings and picks a restaurant for you"

	fmt.Fprintln(os.Stderr, banner([]string{message1, message2}, 0))
}
