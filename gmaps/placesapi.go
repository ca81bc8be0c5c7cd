package gmaps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gosom/maps-recommender/metrics"
)

const (
	DefaultFindPlaceURL    = "https://maps.googleapis.com/maps/api/place/findplacefromtext/json"
	DefaultPlaceDetailsURL = "https://maps.googleapis.com/maps/api/place/details/json"

	placeIDFields      = "place_id"
	findPlaceFields    = "place_id,name,formatted_address,geometry"
	placeDetailsFields = "name,formatted_address,geometry,international_phone_number,website,opening_hours,rating,review,user_ratings_total"
)

// FindPlaceResponse is the part of a find place response needed to resolve
// a place id.
type FindPlaceResponse struct {
	Candidates []struct {
		PlaceID string `json:"place_id"`
	} `json:"candidates"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type PlacesClientOptions func(*PlacesClient)

// PlacesClient calls the Places find place and place details endpoints.
type PlacesClient struct {
	apiKey       string
	findPlaceURL string
	detailsURL   string
	httpClient   *http.Client
	log          *slog.Logger
}

func NewPlacesClient(apiKey string, opts ...PlacesClientOptions) *PlacesClient {
	c := PlacesClient{
		apiKey:       apiKey,
		findPlaceURL: DefaultFindPlaceURL,
		detailsURL:   DefaultPlaceDetailsURL,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		log:          slog.Default(),
	}

	for _, opt := range opts {
		opt(&c)
	}

	return &c
}

func WithFindPlaceURL(u string) PlacesClientOptions {
	return func(c *PlacesClient) {
		if u != "" {
			c.findPlaceURL = u
		}
	}
}

func WithPlaceDetailsURL(u string) PlacesClientOptions {
	return func(c *PlacesClient) {
		if u != "" {
			c.detailsURL = u
		}
	}
}

func WithHTTPClient(hc *http.Client) PlacesClientOptions {
	return func(c *PlacesClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithPlacesLogger(l *slog.Logger) PlacesClientOptions {
	return func(c *PlacesClient) {
		if l != nil {
			c.log = l
		}
	}
}

// FindPlaceID resolves a free text place name to the id of the first
// candidate. found is false when the search returned no candidates.
func (c *PlacesClient) FindPlaceID(ctx context.Context, name string) (id string, found bool, err error) {
	params := url.Values{}
	params.Set("input", name)
	params.Set("inputtype", "textquery")
	params.Set("fields", placeIDFields)
	params.Set("key", c.apiKey)

	body, err := c.get(ctx, "findplace", c.findPlaceURL, params)
	if err != nil {
		return "", false, err
	}

	var response FindPlaceResponse
	if err := json.Unmarshal(body, &response); err != nil {
		metrics.PlaceLookups.WithLabelValues("findplace", metrics.OutcomeError).Inc()

		return "", false, fmt.Errorf("failed to parse response: %w", err)
	}

	// first match wins, there is no disambiguation
	if len(response.Candidates) == 0 {
		metrics.PlaceLookups.WithLabelValues("findplace", metrics.OutcomeNotFound).Inc()
		c.log.Info("no place id found", "place", name, "status", response.Status, "error_message", response.ErrorMessage)

		return "", false, nil
	}

	metrics.PlaceLookups.WithLabelValues("findplace", metrics.OutcomeOK).Inc()

	return response.Candidates[0].PlaceID, true, nil
}

// FindPlace runs a find place search and returns the response body as is.
// locationBias is passed through when not empty.
func (c *PlacesClient) FindPlace(ctx context.Context, input, locationBias string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("input", input)
	params.Set("inputtype", "textquery")
	params.Set("fields", findPlaceFields)
	params.Set("key", c.apiKey)

	if locationBias != "" {
		params.Set("locationbias", locationBias)
	}

	body, err := c.get(ctx, "findplace", c.findPlaceURL, params)
	if err != nil {
		return nil, err
	}

	metrics.PlaceLookups.WithLabelValues("findplace", metrics.OutcomeOK).Inc()

	return body, nil
}

// PlaceDetails returns the unmodified details response for placeID.
func (c *PlacesClient) PlaceDetails(ctx context.Context, placeID string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", placeDetailsFields)
	params.Set("key", c.apiKey)

	body, err := c.get(ctx, "details", c.detailsURL, params)
	if err != nil {
		return nil, err
	}

	metrics.PlaceLookups.WithLabelValues("details", metrics.OutcomeOK).Inc()

	return body, nil
}

func (c *PlacesClient) get(ctx context.Context, endpoint, base string, params url.Values) (json.RawMessage, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid %s endpoint: %w", endpoint, err)
	}

	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.PlaceLookups.WithLabelValues(endpoint, metrics.OutcomeError).Inc()

		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.PlaceLookups.WithLabelValues(endpoint, metrics.OutcomeError).Inc()

		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.PlaceLookups.WithLabelValues(endpoint, metrics.OutcomeError).Inc()

		return nil, fmt.Errorf("API error: %d, %s", resp.StatusCode, string(body))
	}

	if !json.Valid(body) {
		metrics.PlaceLookups.WithLabelValues(endpoint, metrics.OutcomeError).Inc()

		return nil, fmt.Errorf("failed to parse response: invalid json from %s endpoint", endpoint)
	}

	return body, nil
}

// PlaceIDURL builds a Google Maps link for a place id.
// Format: https://www.google.com/maps/search/?api=1&query=Google&query_place_id={place_id}
func PlaceIDURL(name, placeID string) string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%s&query_place_id=%s",
		url.QueryEscape(name), url.QueryEscape(placeID))
}
