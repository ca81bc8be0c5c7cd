package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosom/maps-recommender/gmaps"
	"github.com/gosom/maps-recommender/llm"
	"github.com/gosom/maps-recommender/recommend"
)

type fakePlaces struct {
	ids     map[string]string
	err     error
	details json.RawMessage

	input, bias string
}

func (f *fakePlaces) FindPlaceID(_ context.Context, name string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}

	id, ok := f.ids[name]

	return id, ok, nil
}

func (f *fakePlaces) FindPlace(_ context.Context, input, bias string) (json.RawMessage, error) {
	f.input, f.bias = input, bias

	return json.RawMessage(`{"candidates":[{"place_id":"p1"}],"status":"OK"}`), f.err
}

func (f *fakePlaces) PlaceDetails(context.Context, string) (json.RawMessage, error) {
	return f.details, f.err
}

type fakeCompleter struct {
	system, prompt string
	err            error
}

func (f *fakeCompleter) CompleteWithSystem(_ context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt

	return "Takumi", f.err
}

type fakeRecommender struct {
	descriptions []string
	preference   string
	err          error
}

func (f *fakeRecommender) Run(_ context.Context, descriptions []string, preference string) (*recommend.Result, error) {
	f.descriptions, f.preference = descriptions, preference

	if f.err != nil {
		return nil, f.err
	}

	return &recommend.Result{
		Summary:   "Takumi, Ghost",
		Names:     []string{"Takumi", " Ghost"},
		Aggregate: recommend.Aggregate{"Takumi": json.RawMessage(`{"result":{"name":"Takumi"}}`)},
		PlaceIDs:  map[string]string{"Takumi": "p1"},
		Failures: []recommend.PlaceFailure{
			{Name: " Ghost", Reason: recommend.FailureNotFound},
		},
		Recommendation: "Takumi",
	}, nil
}

type fakeScraper struct {
	err       error
	delay     time.Duration
	locations bool
	calls     atomic.Int32
	active    atomic.Int32
	peak      atomic.Int32
}

func (f *fakeScraper) Run(_ context.Context, u string) gmaps.ScrapeReport {
	f.calls.Add(1)

	n := f.active.Add(1)
	defer f.active.Add(-1)

	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	time.Sleep(f.delay)

	if f.err != nil {
		return gmaps.ScrapeReport{URL: u, Err: f.err}
	}

	if f.locations {
		return gmaps.ScrapeReport{
			URL:       u,
			Container: "div[role='feed']",
			Results: []gmaps.ExtractResult{
				{Index: 1, Location: &gmaps.RestaurantLocation{Name: "Takumi", Location: "Stratumseind 27"}},
			},
		}
	}

	return gmaps.ScrapeReport{
		URL:       u,
		Container: "div[role='feed']",
		Scroll:    gmaps.ScrollResult{Scrolls: 2, Height: 900},
		Results: []gmaps.ExtractResult{
			{Index: 1, Restaurant: &gmaps.Restaurant{Name: "Takumi", Rating: "4.6", Reviews: "(10)", Details: "Ramen"}},
			{Index: 2, Err: &gmaps.FieldError{Index: 2, Field: "rating", Err: gmaps.ErrFieldNotFound}},
		},
	}
}

type testDeps struct {
	places    *fakePlaces
	completer *fakeCompleter
	rec       *fakeRecommender
	scraper   *fakeScraper
}

func newTestServer(t *testing.T) (*Server, *testDeps) {
	t.Helper()

	deps := &testDeps{
		places:    &fakePlaces{ids: map[string]string{"Takumi": "p1"}, details: json.RawMessage(`{"result":{"name":"Takumi"},"status":"OK"}`)},
		completer: &fakeCompleter{},
		rec:       &fakeRecommender{},
		scraper:   &fakeScraper{},
	}

	srv, err := New(":0", ServerOptions{
		Places:      deps.places,
		Completer:   deps.completer,
		Recommender: deps.rec,
		Scraper:     deps.scraper,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	return srv, deps
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))

	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(":0", ServerOptions{})
	require.Error(t, err)
}

func TestIndexHealthMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "What are your preferences for today?")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/recommend", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPlaceID(t *testing.T) {
	srv, deps := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/place-id?placeName=Takumi", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"placeId":"p1"}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/place-id?placeName=Ghost", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, apiError{Code: http.StatusNotFound, Message: "Place not found"}, decode[apiError](t, rec))

	rec = do(t, srv, http.MethodGet, "/api/v1/place-id", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	deps.places.err = errors.New("quota exceeded")

	rec = do(t, srv, http.MethodGet, "/api/v1/place-id?placeName=Takumi", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPlaceDetails(t *testing.T) {
	srv, deps := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/place-details?placeId=p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"result":{"name":"Takumi"},"status":"OK"}`, rec.Body.String())
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = do(t, srv, http.MethodGet, "/api/v1/place-details", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	deps.places.err = errors.New("boom")

	rec = do(t, srv, http.MethodGet, "/api/v1/place-details?placeId=p1", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFindPlace(t *testing.T) {
	srv, deps := newTestServer(t)

	q := url.Values{"input": {"Takumi"}, "locationbias": {"circle:2000@51.44,5.47"}}

	rec := do(t, srv, http.MethodGet, "/api/v1/findplace?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Takumi", deps.places.input)
	require.Equal(t, "circle:2000@51.44,5.47", deps.places.bias)

	rec = do(t, srv, http.MethodGet, "/api/v1/findplace", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompletions(t *testing.T) {
	srv, deps := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/completions", `{"prompt":"pick one"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"response":"Takumi"}`, rec.Body.String())
	require.Equal(t, llm.DefaultSystemPrompt, deps.completer.system)
	require.Equal(t, "pick one", deps.completer.prompt)

	rec = do(t, srv, http.MethodPost, "/api/v1/completions", `{"prompt":"  "}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/completions", `{`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	deps.completer.err = errors.New("down")

	rec = do(t, srv, http.MethodPost, "/api/v1/completions", `{"prompt":"pick one"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExpandURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/redirect":
			http.Redirect(w, r, "https://www.google.com/maps/place/Takumi", http.StatusFound)
		case "/meta":
			_, _ = w.Write([]byte(`<meta http-equiv="refresh" content="0; URL='https://www.google.com/maps/search/ramen'">`))
		case "/plain":
			_, _ = w.Write([]byte(`<html>nothing</html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t)

	tests := []struct {
		path string
		want string
	}{
		{path: "/redirect", want: "https://www.google.com/maps/place/Takumi"},
		{path: "/meta", want: "https://www.google.com/maps/search/ramen"},
		{path: "/plain", want: upstream.URL + "/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			target := "/api/v1/expand-url?" + url.Values{"url": {upstream.URL + tt.path}}.Encode()

			rec := do(t, srv, http.MethodGet, target, "")
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, tt.want, decode[expandURLResponse](t, rec).ExpandedURL)
		})
	}

	rec := do(t, srv, http.MethodGet, "/api/v1/expand-url?"+url.Values{"url": {upstream.URL + "/gone"}}.Encode(), "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to expand URL", decode[apiError](t, rec).Message)

	rec = do(t, srv, http.MethodGet, "/api/v1/expand-url", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/expand-url?url=ftp://example.com", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecommend(t *testing.T) {
	srv, deps := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/recommend",
		`{"restaurants":"Takumi ramen bar\nGhost kitchen","preferences":"noodles"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, []string{"Takumi ramen bar", "Ghost kitchen"}, deps.rec.descriptions)
	require.Equal(t, "noodles", deps.rec.preference)

	got := decode[apiRecommendResponse](t, rec)
	assert.Equal(t, "Takumi", got.Recommendation)
	assert.Equal(t, []string{"Takumi", " Ghost"}, got.Names)
	assert.Contains(t, got.Places, "Takumi")
	assert.Equal(t, map[string]string{
		"Takumi": "https://www.google.com/maps/search/?api=1&query=Takumi&query_place_id=p1",
	}, got.PlaceURLs)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, recommend.FailureNotFound, got.Failures[0].Reason)
}

func TestRecommend_Validation(t *testing.T) {
	srv, deps := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/recommend", `{"restaurants":"  ","preferences":""}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	got := decode[apiError](t, rec)
	require.Equal(t, map[string]string{
		"restaurants": "Please paste your restaurant lists.",
		"preferences": "What are your preferences for today?",
	}, got.Fields)
	require.Nil(t, deps.rec.descriptions)

	deps.rec.err = errors.New("llm down")

	rec = do(t, srv, http.MethodPost, "/api/v1/recommend", `{"restaurants":"a","preferences":"b"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestScrape(t *testing.T) {
	srv, deps := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/scrape", `{"url":"https://www.google.com/maps/search/ramen"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[scrapeResponse](t, rec)
	assert.Equal(t, 2, got.Scrolls)
	require.Len(t, got.Restaurants, 1)
	assert.Equal(t, "Takumi", got.Restaurants[0].Name)
	require.Len(t, got.ItemErrors, 1)
	assert.Contains(t, got.ItemErrors[0], "rating")

	rec = do(t, srv, http.MethodPost, "/api/v1/scrape", `{"url":"not a url"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	deps.scraper.err = errors.New("browser crashed")

	rec = do(t, srv, http.MethodPost, "/api/v1/scrape", `{"url":"https://www.google.com/maps/search/ramen"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestScrape_Serialized(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.scraper.delay = 10 * time.Millisecond

	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", strings.NewReader(`{"url":"https://maps.example/x"}`))
			srv.Handler().ServeHTTP(httptest.NewRecorder(), req)
		}()
	}

	wg.Wait()

	require.Equal(t, int32(1), deps.scraper.peak.Load())
}

func TestScrape_LocationLayout(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.scraper.locations = true

	rec := do(t, srv, http.MethodPost, "/api/v1/scrape", `{"url":"https://www.google.com/maps/search/ramen"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[scrapeResponse](t, rec)
	require.Empty(t, got.Restaurants)
	require.Equal(t, []gmaps.RestaurantLocation{{Name: "Takumi", Location: "Stratumseind 27"}}, got.Locations)
}

func TestScrape_WaitingRequestCanGiveUp(t *testing.T) {
	srv, deps := newTestServer(t)

	// another scrape holds the browser
	srv.scrapeSem <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", strings.NewReader(`{"url":"https://maps.example/x"}`)).
		WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})

	go func() {
		defer close(done)

		srv.Handler().ServeHTTP(rec, req)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scrape request kept waiting after cancellation")
	}

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, int32(0), deps.scraper.calls.Load())

	<-srv.scrapeSem

	rec = do(t, srv, http.MethodPost, "/api/v1/scrape", `{"url":"https://maps.example/x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(1), deps.scraper.calls.Load())
}
