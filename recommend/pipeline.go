// Package recommend turns free text restaurant descriptions into a single
// recommendation backed by place details.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Completer is the text generation side of the pipeline.
type Completer interface {
	Summarize(ctx context.Context, descriptions []string) (string, error)
	Recommend(ctx context.Context, preference string, aggregate []byte) (string, error)
}

// PlaceLookup resolves names to place ids and fetches their details.
type PlaceLookup interface {
	FindPlaceID(ctx context.Context, name string) (string, bool, error)
	PlaceDetails(ctx context.Context, placeID string) (json.RawMessage, error)
}

// Aggregate maps a summarized name to its raw place details.
type Aggregate map[string]json.RawMessage

// JSON serializes the aggregate with keys in sorted order.
func (a Aggregate) JSON() ([]byte, error) {
	if a == nil {
		a = Aggregate{}
	}

	return json.Marshal(a)
}

type FailureReason string

const (
	FailureNotFound FailureReason = "not_found"
	FailureLookup   FailureReason = "lookup_failed"
	FailureDetails  FailureReason = "details_failed"
)

// PlaceFailure records a name that did not make it into the aggregate.
type PlaceFailure struct {
	Name   string        `json:"name"`
	Reason FailureReason `json:"reason"`
	Err    error         `json:"-"`
}

func (f *PlaceFailure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%q: %s", f.Name, f.Reason)
	}

	return fmt.Sprintf("%q: %s: %v", f.Name, f.Reason, f.Err)
}

func (f *PlaceFailure) Unwrap() error {
	return f.Err
}

type Result struct {
	Summary   string    `json:"summary"`
	Names     []string  `json:"names"`
	Aggregate Aggregate `json:"aggregate"`
	// PlaceIDs maps every name in Aggregate to its resolved place id.
	PlaceIDs       map[string]string `json:"place_ids"`
	Failures       []PlaceFailure    `json:"failures"`
	Recommendation string            `json:"recommendation"`
}

type PipelineOptions func(*Pipeline)

type Pipeline struct {
	completer Completer
	places    PlaceLookup
	log       *slog.Logger
}

func NewPipeline(completer Completer, places PlaceLookup, opts ...PipelineOptions) *Pipeline {
	p := Pipeline{
		completer: completer,
		places:    places,
		log:       slog.Default(),
	}

	for _, opt := range opts {
		opt(&p)
	}

	return &p
}

func WithLogger(l *slog.Logger) PipelineOptions {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// SplitNames splits a summary on commas. Fragments are not trimmed, so the
// surrounding whitespace is part of the name used for lookup.
func SplitNames(summary string) []string {
	return strings.Split(summary, ",")
}

// Run summarizes descriptions, resolves every summarized name, and asks for a
// recommendation matching preference. Names that cannot be resolved are
// recorded in Result.Failures and skipped. Summarization and recommendation
// errors abort the run.
func (p *Pipeline) Run(ctx context.Context, descriptions []string, preference string) (*Result, error) {
	summary, err := p.completer.Summarize(ctx, descriptions)
	if err != nil {
		return nil, fmt.Errorf("could not summarize restaurants: %w", err)
	}

	p.log.Info("restaurants summarized", "summary", summary)

	res := Result{
		Summary:   summary,
		Names:     SplitNames(summary),
		Aggregate: Aggregate{},
		PlaceIDs:  map[string]string{},
		Failures:  []PlaceFailure{},
	}

	for _, name := range res.Names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, details, failure := p.lookup(ctx, name)
		if failure != nil {
			p.log.Error("could not fetch place details", "name", name, "reason", failure.Reason, "error", failure.Err)
			res.Failures = append(res.Failures, *failure)

			continue
		}

		res.Aggregate[name] = details
		res.PlaceIDs[name] = id
	}

	payload, err := res.Aggregate.JSON()
	if err != nil {
		return nil, fmt.Errorf("could not serialize place details: %w", err)
	}

	p.log.Info("asking for a recommendation", "places", len(res.Aggregate), "failures", len(res.Failures))

	res.Recommendation, err = p.completer.Recommend(ctx, preference, payload)
	if err != nil {
		return nil, fmt.Errorf("could not get recommendation: %w", err)
	}

	return &res, nil
}

func (p *Pipeline) lookup(ctx context.Context, name string) (string, json.RawMessage, *PlaceFailure) {
	id, found, err := p.places.FindPlaceID(ctx, name)
	if err != nil {
		return "", nil, &PlaceFailure{Name: name, Reason: FailureLookup, Err: err}
	}

	if !found {
		return "", nil, &PlaceFailure{Name: name, Reason: FailureNotFound}
	}

	details, err := p.places.PlaceDetails(ctx, id)
	if err != nil {
		return "", nil, &PlaceFailure{Name: name, Reason: FailureDetails, Err: err}
	}

	return id, details, nil
}
