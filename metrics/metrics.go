// Package metrics holds the prometheus collectors shared by the scraper, the
// recommendation pipeline and the web server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "maps_recommender"

var (
	ScrollCommands = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scroll_commands_total",
		Help:      "Scroll-to-bottom commands issued against listing containers.",
	})

	ScrapeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_runs_total",
		Help:      "Listing scrapes by outcome.",
	}, []string{"outcome"})

	ExtractedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extracted_items_total",
		Help:      "Listing items by extraction outcome. Failed items are labeled with the missing field.",
	}, []string{"outcome", "field"})

	PlaceLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "place_lookups_total",
		Help:      "Places API calls by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	CompletionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "completion_requests_total",
		Help:      "Text-generation requests by outcome.",
	}, []string{"outcome"})
)

const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
	OutcomeEmpty    = "empty"
)
