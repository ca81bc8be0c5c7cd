package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gosom/maps-recommender/gmaps"
	"github.com/gosom/maps-recommender/llm"
	"github.com/gosom/maps-recommender/recommend"
)

const maxRequestBody = 1 << 20

func (s *Server) apiPlaceID(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("placeName")
	if name == "" {
		renderError(w, http.StatusBadRequest, "placeName is required")

		return
	}

	id, found, err := s.places.FindPlaceID(r.Context(), name)
	if err != nil {
		s.log.Error("could not resolve place id", "request_id", requestIDFrom(r.Context()), "place", name, "error", err)
		renderError(w, http.StatusInternalServerError, "Internal Server Error")

		return
	}

	if !found {
		renderError(w, http.StatusNotFound, "Place not found")

		return
	}

	renderJSON(w, http.StatusOK, map[string]string{"placeId": id})
}

func (s *Server) apiPlaceDetails(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("placeId")
	if id == "" {
		renderError(w, http.StatusBadRequest, "placeId is required")

		return
	}

	details, err := s.places.PlaceDetails(r.Context(), id)
	if err != nil {
		s.log.Error("could not fetch place details", "request_id", requestIDFrom(r.Context()), "place_id", id, "error", err)
		renderError(w, http.StatusInternalServerError, "Internal Server Error")

		return
	}

	renderRaw(w, http.StatusOK, details)
}

func (s *Server) apiFindPlace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	input := q.Get("input")
	if input == "" {
		renderError(w, http.StatusBadRequest, "input is required")

		return
	}

	body, err := s.places.FindPlace(r.Context(), input, q.Get("locationbias"))
	if err != nil {
		s.log.Error("could not find place", "request_id", requestIDFrom(r.Context()), "input", input, "error", err)
		renderError(w, http.StatusInternalServerError, "Internal Server Error")

		return
	}

	renderRaw(w, http.StatusOK, body)
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Response string `json:"response"`
}

func (s *Server) apiCompletions(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, http.StatusUnprocessableEntity, err.Error())

		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		renderError(w, http.StatusUnprocessableEntity, "prompt is required")

		return
	}

	answer, err := s.llm.CompleteWithSystem(r.Context(), llm.DefaultSystemPrompt, req.Prompt)
	if err != nil {
		s.log.Error("completion failed", "request_id", requestIDFrom(r.Context()), "error", err)
		renderError(w, http.StatusInternalServerError, "Internal Server Error")

		return
	}

	renderJSON(w, http.StatusOK, completionResponse{Response: answer})
}

type expandURLResponse struct {
	ExpandedURL string `json:"expandedUrl"`
}

func (s *Server) apiExpandURL(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" || !validHTTPURL(u) {
		renderError(w, http.StatusBadRequest, "URL parameter is required and must be an http(s) url")

		return
	}

	expanded, err := s.expander.Expand(r.Context(), u)
	if err != nil {
		s.log.Error("could not expand url", "request_id", requestIDFrom(r.Context()), "url", u, "error", err)
		renderError(w, http.StatusInternalServerError, "Failed to expand URL")

		return
	}

	renderJSON(w, http.StatusOK, expandURLResponse{ExpandedURL: expanded})
}

type recommendRequest struct {
	Restaurants string `json:"restaurants"`
	Preferences string `json:"preferences"`
}

func (req recommendRequest) validate() map[string]string {
	fields := map[string]string{}

	if strings.TrimSpace(req.Restaurants) == "" {
		fields["restaurants"] = "Please paste your restaurant lists."
	}

	if strings.TrimSpace(req.Preferences) == "" {
		fields["preferences"] = "What are your preferences for today?"
	}

	return fields
}

func (s *Server) apiRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, http.StatusUnprocessableEntity, err.Error())

		return
	}

	if fields := req.validate(); len(fields) > 0 {
		renderJSON(w, http.StatusUnprocessableEntity, apiError{
			Code:    http.StatusUnprocessableEntity,
			Message: "invalid request",
			Fields:  fields,
		})

		return
	}

	descriptions := strings.Split(req.Restaurants, "\n")

	res, err := s.pipeline.Run(r.Context(), descriptions, req.Preferences)
	if err != nil {
		s.log.Error("recommendation failed", "request_id", requestIDFrom(r.Context()), "error", err)
		renderError(w, http.StatusInternalServerError, "Internal Server Error")

		return
	}

	renderJSON(w, http.StatusOK, recommendResponse(res))
}

type failureResponse struct {
	Name   string                  `json:"name"`
	Reason recommend.FailureReason `json:"reason"`
	Error  string                  `json:"error,omitempty"`
}

type apiRecommendResponse struct {
	Summary        string                     `json:"summary"`
	Names          []string                   `json:"names"`
	Places         map[string]json.RawMessage `json:"places"`
	PlaceURLs      map[string]string          `json:"place_urls"`
	Failures       []failureResponse          `json:"failures"`
	Recommendation string                     `json:"recommendation"`
}

func recommendResponse(res *recommend.Result) apiRecommendResponse {
	ans := apiRecommendResponse{
		Summary:        res.Summary,
		Names:          res.Names,
		Places:         res.Aggregate,
		PlaceURLs:      make(map[string]string, len(res.PlaceIDs)),
		Failures:       make([]failureResponse, 0, len(res.Failures)),
		Recommendation: res.Recommendation,
	}

	for name, id := range res.PlaceIDs {
		ans.PlaceURLs[name] = gmaps.PlaceIDURL(strings.TrimSpace(name), id)
	}

	for _, f := range res.Failures {
		item := failureResponse{Name: f.Name, Reason: f.Reason}
		if f.Err != nil {
			item.Error = f.Err.Error()
		}

		ans.Failures = append(ans.Failures, item)
	}

	return ans
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type scrapeResponse struct {
	URL         string                     `json:"url"`
	Container   string                     `json:"container"`
	Scrolls     int                        `json:"scrolls"`
	Restaurants []gmaps.Restaurant         `json:"restaurants"`
	Locations   []gmaps.RestaurantLocation `json:"locations,omitempty"`
	ItemErrors  []string                   `json:"item_errors"`
}

func (s *Server) apiScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, http.StatusUnprocessableEntity, err.Error())

		return
	}

	if !validHTTPURL(req.URL) {
		renderError(w, http.StatusUnprocessableEntity, "url must be an http(s) url")

		return
	}

	select {
	case s.scrapeSem <- struct{}{}:
	case <-r.Context().Done():
		s.log.Info("scrape request gave up while waiting", "request_id", requestIDFrom(r.Context()), "url", req.URL)
		renderError(w, http.StatusServiceUnavailable, "Scrape cancelled")

		return
	}

	rep := s.scraper.Run(r.Context(), req.URL)
	<-s.scrapeSem

	if rep.Err != nil {
		s.log.Error("scrape failed", "request_id", requestIDFrom(r.Context()), "url", req.URL, "error", rep.Err)
		renderError(w, http.StatusInternalServerError, "Failed to scrape listing")

		return
	}

	ans := scrapeResponse{
		URL:         rep.URL,
		Container:   rep.Container,
		Scrolls:     rep.Scroll.Scrolls,
		Restaurants: rep.Restaurants(),
		ItemErrors:  []string{},
	}

	if locations := rep.Locations(); len(locations) > 0 {
		ans.Locations = locations
	}

	for _, item := range rep.Results {
		if item.Err != nil {
			ans.ItemErrors = append(ans.ItemErrors, item.Err.Error())
		}
	}

	renderJSON(w, http.StatusOK, ans)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	return json.NewDecoder(r.Body).Decode(dst)
}
