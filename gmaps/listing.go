package gmaps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gosom/maps-recommender/metrics"
)

const (
	defaultFeedSelector    = `div[role='feed']`
	defaultBodySelector    = `body`
	defaultConsentSelector = `//button[contains(., 'Accept all')]`

	defaultContainerTimeout = 60 * time.Second
	defaultConsentTimeout   = 10 * time.Second
)

type ListScraperOptions func(*ListScraper)

// ListScraper scrolls a Google Maps results feed until it stops growing and
// extracts the restaurants listed in it.
type ListScraper struct {
	launch    Launcher
	layout    Layout
	selectors FieldSelectors
	extractor *Extractor
	policy    ScrollPolicy
	log       *slog.Logger

	FeedSelector     string
	ConsentSelector  string
	ContainerTimeout time.Duration
	ConsentTimeout   time.Duration
}

func NewListScraper(launch Launcher, opts ...ListScraperOptions) *ListScraper {
	s := ListScraper{
		launch:           launch,
		layout:           LayoutRatings,
		policy:           DefaultScrollPolicy(),
		log:              slog.Default(),
		FeedSelector:     defaultFeedSelector,
		ConsentSelector:  defaultConsentSelector,
		ContainerTimeout: defaultContainerTimeout,
		ConsentTimeout:   defaultConsentTimeout,
	}

	for _, opt := range opts {
		opt(&s)
	}

	s.extractor = NewLayoutExtractor(s.layout, s.selectors)

	return &s
}

func WithScrollPolicy(p ScrollPolicy) ListScraperOptions {
	return func(s *ListScraper) {
		s.policy = p
	}
}

// WithLayout selects the record shape. The default is LayoutRatings.
func WithLayout(l Layout) ListScraperOptions {
	return func(s *ListScraper) {
		if l != "" {
			s.layout = l
		}
	}
}

// WithFieldSelectors overrides the selectors of the layout. Empty fields keep
// the layout defaults.
func WithFieldSelectors(sel FieldSelectors) ListScraperOptions {
	return func(s *ListScraper) {
		s.selectors = sel
	}
}

func WithContainerTimeout(d time.Duration) ListScraperOptions {
	return func(s *ListScraper) {
		s.ContainerTimeout = d
	}
}

func WithConsentTimeout(d time.Duration) ListScraperOptions {
	return func(s *ListScraper) {
		s.ConsentTimeout = d
	}
}

func WithLogger(l *slog.Logger) ListScraperOptions {
	return func(s *ListScraper) {
		if l != nil {
			s.log = l
		}
	}
}

// ScrapeReport is the full outcome of one listing scrape.
type ScrapeReport struct {
	URL string
	// Container is the selector of the element that was scrolled and walked.
	Container string
	Scroll    ScrollResult
	Results   []ExtractResult
	Err       error
}

func (r *ScrapeReport) Restaurants() []Restaurant {
	ans := Restaurants(r.Results)
	if ans == nil {
		ans = []Restaurant{}
	}

	return ans
}

func (r *ScrapeReport) Locations() []RestaurantLocation {
	ans := Locations(r.Results)
	if ans == nil {
		ans = []RestaurantLocation{}
	}

	return ans
}

func (s *ListScraper) Layout() Layout {
	return s.layout
}

// Scrape returns the restaurants listed at u. Any failure is logged and
// yields an empty slice.
func (s *ListScraper) Scrape(ctx context.Context, u string) []Restaurant {
	rep := s.Run(ctx, u)
	if rep.Err != nil {
		s.log.Error("an error occurred during scraping", "url", u, "error", rep.Err)

		return []Restaurant{}
	}

	return rep.Restaurants()
}

// ScrapeLocations is Scrape for the location layout.
func (s *ListScraper) ScrapeLocations(ctx context.Context, u string) []RestaurantLocation {
	rep := s.Run(ctx, u)
	if rep.Err != nil {
		s.log.Error("an error occurred during scraping", "url", u, "error", rep.Err)

		return []RestaurantLocation{}
	}

	return rep.Locations()
}

// Run performs one scrape in its own browser session. The session is closed
// before Run returns.
func (s *ListScraper) Run(ctx context.Context, u string) (rep ScrapeReport) {
	rep.URL = u

	log := s.log.With("url", u)
	log.Info("starting scrape", "layout", s.layout)

	defer func() {
		outcome := metrics.OutcomeOK
		if rep.Err != nil {
			outcome = metrics.OutcomeError
		}

		metrics.ScrapeRuns.WithLabelValues(outcome).Inc()
	}()

	page, err := s.launch(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("could not open browser session: %w", err)

		return rep
	}

	defer func() {
		log.Info("closing browser session")

		if err := page.Close(); err != nil {
			log.Warn("could not close browser session", "error", err)
		}
	}()

	rep.Err = s.run(ctx, page, &rep, log)

	return rep
}

func (s *ListScraper) run(ctx context.Context, page Page, rep *ScrapeReport, log *slog.Logger) error {
	if err := page.Goto(ctx, rep.URL); err != nil {
		return fmt.Errorf("could not navigate: %w", err)
	}

	log.Info("page loaded")

	clicked, err := page.ClickIfPresent(ctx, s.ConsentSelector, s.ConsentTimeout)
	if err != nil {
		return fmt.Errorf("could not dismiss consent dialog: %w", err)
	}

	if clicked {
		log.Info("consent button clicked")
	} else {
		log.Info("no consent button found or not clickable")
	}

	container, err := s.container(ctx, page, rep, log)
	if err != nil {
		return err
	}

	log.Info("starting to scroll the container", "container", rep.Container)

	rep.Scroll, err = Scroll(ctx, container, s.policy)
	if err != nil {
		return err
	}

	log.Info("finished scrolling", "scrolls", rep.Scroll.Scrolls, "height", rep.Scroll.Height)

	html, err := container.OuterHTML(ctx)
	if err != nil {
		return fmt.Errorf("could not read container html: %w", err)
	}

	rep.Results, err = s.extractor.ExtractHTML(html)
	if err != nil {
		return err
	}

	for _, r := range rep.Results {
		if r.OK() {
			metrics.ExtractedItems.WithLabelValues(metrics.OutcomeOK, "").Inc()
			log.Debug("processed restaurant", "index", r.Index, "name", r.Name())

			continue
		}

		var field string

		var fe *FieldError
		if errors.As(r.Err, &fe) {
			field = fe.Field
		}

		metrics.ExtractedItems.WithLabelValues(metrics.OutcomeError, field).Inc()
		log.Error("error processing restaurant", "index", r.Index, "error", r.Err)
	}

	log.Info("scrape finished", "items", len(rep.Results), "extracted", len(rep.Results)-len(Failures(rep.Results)))

	return nil
}

// container waits for the results feed and falls back to the page body when
// the feed cannot be located.
func (s *ListScraper) container(ctx context.Context, page Page, rep *ScrapeReport, log *slog.Logger) (Element, error) {
	el, err := page.WaitForElement(ctx, s.FeedSelector, s.ContainerTimeout)
	if err == nil {
		rep.Container = s.FeedSelector

		return el, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log.Error("could not locate results feed, proceeding with page body", "error", err)

	el, err = page.Element(ctx, defaultBodySelector)
	if err != nil {
		return nil, fmt.Errorf("could not locate page body: %w", err)
	}

	rep.Container = defaultBodySelector

	return el, nil
}
