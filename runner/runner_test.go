package runner

import (
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosom/maps-recommender/gmaps"
	"github.com/gosom/maps-recommender/llm"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	return parseConfig(fs, args)
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)

	assert.Equal(t, RunModeWeb, cfg.RunMode)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, llm.DefaultModel, cfg.Model)
	assert.Equal(t, gmaps.DefaultScrollPolicy(), cfg.ScrollPolicy())
	assert.Equal(t, 60*time.Second, cfg.ContainerTimeout)
	assert.Equal(t, 10*time.Second, cfg.ConsentTimeout)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.NotEmpty(t, cfg.RunID)
	assert.Equal(t, gmaps.LayoutRatings, cfg.Layout)
}

func TestParseConfig_Layout(t *testing.T) {
	cfg, err := parse(t, "-url", "https://maps.example", "-layout", "location")
	require.NoError(t, err)
	require.Equal(t, gmaps.LayoutLocation, cfg.Layout)
	require.Equal(t, gmaps.LayoutLocation, cfg.ListScraper(nil).Layout())

	_, err = parse(t, "-url", "https://maps.example", "-layout", "menu")
	require.ErrorIs(t, err, gmaps.ErrUnknownLayout)
}

func TestParseConfig_SelectorEnv(t *testing.T) {
	t.Setenv("SELECTOR_ARTICLE", "li.place")
	t.Setenv("SELECTOR_LOCATION", "span.addr")

	cfg, err := parse(t, "-url", "https://maps.example")
	require.NoError(t, err)

	require.Equal(t, gmaps.FieldSelectors{Article: "li.place", Location: "span.addr"}, cfg.Env.Selectors.FieldSelectors())
}

func TestParseConfig_Modes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "url implies scrape", args: []string{"-url", "https://maps.example"}, want: RunModeScrape},
		{name: "input implies recommend", args: []string{"-input", "list.txt", "-preference", "ramen"}, want: RunModeRecommend},
		{name: "explicit web", args: []string{"-mode", "web", "-url", "https://maps.example"}, want: RunModeWeb},
		{name: "install", args: []string{"-mode", "install"}, want: RunModeInstallPlaywright},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parse(t, tt.args...)
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg.RunMode)
		})
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown mode", args: []string{"-mode", "crawl"}},
		{name: "scrape without url", args: []string{"-mode", "scrape"}},
		{name: "recommend without input", args: []string{"-mode", "recommend", "-preference", "x"}},
		{name: "recommend without preference", args: []string{"-input", "list.txt", "-preference", "  "}},
		{name: "zero iterations", args: []string{"-scroll-max-iterations", "0"}},
		{name: "zero duration", args: []string{"-scroll-max-duration", "0s"}},
		{name: "negative settle", args: []string{"-scroll-settle", "-1s"}},
		{name: "zero http timeout", args: []string{"-http-timeout", "0s"}},
		{name: "unknown flag", args: []string{"-depth", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.args...)
			require.Error(t, err)
		})
	}

	_, err := parse(t, "-mode", "crawl")
	require.ErrorIs(t, err, ErrInvalidRunMode)
}

func TestParseConfig_Env(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GOOGLE_MAPS_API_KEY", "maps-key")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1")

	cfg, err := parse(t, "-url", "https://maps.example")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Env.OpenAIAPIKey)
	assert.Equal(t, "maps-key", cfg.Env.PlacesAPIKey())
	assert.Equal(t, "http://localhost:9999/v1", cfg.Env.OpenAIBaseURL)

	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg, err = parse(t, "-url", "https://maps.example")
	require.NoError(t, err)
	assert.Equal(t, "google-key", cfg.Env.PlacesAPIKey())
}

func TestParseConfig_InstallOnlyEnv(t *testing.T) {
	t.Setenv("PLAYWRIGHT_INSTALL_ONLY", "1")

	cfg, err := parse(t, "-mode", "web")
	require.NoError(t, err)
	require.Equal(t, RunModeInstallPlaywright, cfg.RunMode)
}

func TestReadLines(t *testing.T) {
	got, err := readLines(strings.NewReader("Takumi ramen\n\n  Tony pizza  \r\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"Takumi ramen", "Tony pizza"}, got)
}

func TestBanner(t *testing.T) {
	out := banner([]string{"🍜 Maps Recommender", strings.Repeat("x", 50)}, 30)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 5)

	for _, line := range lines {
		require.Equal(t, 30, runewidth.StringWidth(line))
	}
}

func TestTelemetryDisabled(t *testing.T) {
	require.NotNil(t, Telemetry())
}

func TestWrapText(t *testing.T) {
	require.Equal(t, []string{"abcd", "ef"}, wrapText("abcdef", 4))
	require.Equal(t, []string{"🍜🍜", "🍜"}, wrapText("🍜🍜🍜", 4))
	require.Equal(t, []string{"🍜"}, wrapText("🍜", 1))
	require.Nil(t, wrapText("", 4))
}
