package gmaps

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
)

var (
	ErrFieldNotFound = errors.New("field not found")
	ErrFieldEmpty    = errors.New("field is empty")
	ErrUnknownLayout = errors.New("unknown layout")
)

// Layout selects the record shape read from each listing item.
type Layout string

const (
	// LayoutRatings reads name, rating, reviews and details.
	LayoutRatings Layout = "ratings"
	// LayoutLocation reads name and location.
	LayoutLocation Layout = "location"
)

func ParseLayout(s string) (Layout, error) {
	switch l := Layout(s); l {
	case LayoutRatings, LayoutLocation:
		return l, nil
	case "":
		return LayoutRatings, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownLayout, s)
	}
}

// FieldSelectors holds the CSS selectors used to read each field relative
// to a single listing item. Fields a layout does not read are ignored.
type FieldSelectors struct {
	Article  string
	Name     string
	Rating   string
	Reviews  string
	Details  string
	Location string
}

func DefaultFieldSelectors() FieldSelectors {
	return FieldSelectors{
		Article: `div[role='article']`,
		Name:    `div.fontHeadlineSmall`,
		Rating:  `span.MW4etd`,
		Reviews: `span.UY7F9`,
		Details: `div.W4Efsd:nth-child(2)`,
	}
}

func LocationFieldSelectors() FieldSelectors {
	return FieldSelectors{
		Article:  `div[role='feed'] > div`,
		Name:     `div.fontHeadlineSmall`,
		Location: `div.fontBodyMedium span:nth-child(2)`,
	}
}

// withDefaults fills every empty selector from def.
func (f FieldSelectors) withDefaults(def FieldSelectors) FieldSelectors {
	f.Article = lo.CoalesceOrEmpty(f.Article, def.Article)
	f.Name = lo.CoalesceOrEmpty(f.Name, def.Name)
	f.Rating = lo.CoalesceOrEmpty(f.Rating, def.Rating)
	f.Reviews = lo.CoalesceOrEmpty(f.Reviews, def.Reviews)
	f.Details = lo.CoalesceOrEmpty(f.Details, def.Details)
	f.Location = lo.CoalesceOrEmpty(f.Location, def.Location)

	return f
}

// FieldError reports which field of which listing item could not be read.
type FieldError struct {
	Index int
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("item %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ExtractResult is the outcome for one listing item. Exactly one of
// Restaurant, Location and Err is set.
type ExtractResult struct {
	Index      int
	Restaurant *Restaurant
	Location   *RestaurantLocation
	Err        error
}

func (r ExtractResult) OK() bool {
	return r.Err == nil && (r.Restaurant != nil || r.Location != nil)
}

// Name of the extracted record, empty on failure.
func (r ExtractResult) Name() string {
	switch {
	case r.Restaurant != nil:
		return r.Restaurant.Name
	case r.Location != nil:
		return r.Location.Name
	default:
		return ""
	}
}

type Extractor struct {
	layout Layout
	sel    FieldSelectors
}

// NewExtractor returns an extractor for the ratings layout.
func NewExtractor(sel FieldSelectors) *Extractor {
	return NewLayoutExtractor(LayoutRatings, sel)
}

// NewLayoutExtractor returns an extractor for layout. Empty selectors are
// taken from the layout defaults.
func NewLayoutExtractor(layout Layout, sel FieldSelectors) *Extractor {
	if layout == LayoutLocation {
		return &Extractor{layout: layout, sel: sel.withDefaults(LocationFieldSelectors())}
	}

	return &Extractor{layout: LayoutRatings, sel: sel.withDefaults(DefaultFieldSelectors())}
}

func (e *Extractor) Layout() Layout {
	return e.layout
}

// ExtractHTML parses the outer HTML of a loaded container and extracts every
// listing item inside it.
func (e *Extractor) ExtractHTML(containerHTML string) ([]ExtractResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(containerHTML))
	if err != nil {
		return nil, fmt.Errorf("could not parse container html: %w", err)
	}

	return e.Extract(doc.Selection), nil
}

// Extract walks the items under container in document order. Item indexes
// start at 1.
func (e *Extractor) Extract(container *goquery.Selection) []ExtractResult {
	items := container.Find(e.sel.Article)

	results := make([]ExtractResult, 0, items.Length())

	items.Each(func(i int, s *goquery.Selection) {
		results = append(results, e.extractOne(i+1, s))
	})

	return results
}

type field struct {
	name string
	sel  string
	dst  *string
}

func (e *Extractor) extractOne(index int, s *goquery.Selection) ExtractResult {
	if e.layout == LayoutLocation {
		var loc RestaurantLocation

		err := readFields(index, s, []field{
			{name: "name", sel: e.sel.Name, dst: &loc.Name},
			{name: "location", sel: e.sel.Location, dst: &loc.Location},
		}, loc.Validate)
		if err != nil {
			return ExtractResult{Index: index, Err: err}
		}

		return ExtractResult{Index: index, Location: &loc}
	}

	var r Restaurant

	err := readFields(index, s, []field{
		{name: "name", sel: e.sel.Name, dst: &r.Name},
		{name: "rating", sel: e.sel.Rating, dst: &r.Rating},
		{name: "reviews", sel: e.sel.Reviews, dst: &r.Reviews},
		{name: "details", sel: e.sel.Details, dst: &r.Details},
	}, r.Validate)
	if err != nil {
		return ExtractResult{Index: index, Err: err}
	}

	return ExtractResult{Index: index, Restaurant: &r}
}

// readFields fills every field or fails on the first one missing, so a
// single missing field drops the whole item.
func readFields(index int, s *goquery.Selection, fields []field, validate func() error) error {
	for _, f := range fields {
		found := s.Find(f.sel)
		if found.Length() == 0 {
			return &FieldError{Index: index, Field: f.name, Err: fmt.Errorf("%w: %s", ErrFieldNotFound, f.sel)}
		}

		*f.dst = RenderedText(found.First())
	}

	if err := validate(); err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			fe.Index = index

			return fe
		}

		return &FieldError{Index: index, Err: err}
	}

	return nil
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "section": true, "table": true, "tr": true, "ul": true,
}

// RenderedText returns the text of s the way a browser lays it out: block
// elements and <br> start a new line, whitespace inside a line collapses to
// single spaces and blank lines are dropped.
func RenderedText(s *goquery.Selection) string {
	var (
		lines []string
		cur   strings.Builder
	)

	flush := func() {
		if line := strings.Join(strings.Fields(cur.String()), " "); line != "" {
			lines = append(lines, line)
		}

		cur.Reset()
	}

	var walk func(*goquery.Selection)

	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch name := goquery.NodeName(c); {
			case name == "#text":
				cur.WriteString(c.Text())
			case name == "br":
				flush()
			case name == "script" || name == "style" || name == "#comment":
			case blockElements[name]:
				flush()
				walk(c)
				flush()
			default:
				walk(c)
			}
		})
	}

	walk(s)
	flush()

	return strings.Join(lines, "\n")
}

// Restaurants keeps the successfully extracted ratings records, in order.
func Restaurants(results []ExtractResult) []Restaurant {
	return lo.FilterMap(results, func(r ExtractResult, _ int) (Restaurant, bool) {
		if !r.OK() || r.Restaurant == nil {
			return Restaurant{}, false
		}

		return *r.Restaurant, true
	})
}

// Locations keeps the successfully extracted location records, in order.
func Locations(results []ExtractResult) []RestaurantLocation {
	return lo.FilterMap(results, func(r ExtractResult, _ int) (RestaurantLocation, bool) {
		if !r.OK() || r.Location == nil {
			return RestaurantLocation{}, false
		}

		return *r.Location, true
	})
}

// Failures returns the per-item errors, in order.
func Failures(results []ExtractResult) []error {
	return lo.FilterMap(results, func(r ExtractResult, _ int) (error, bool) {
		return r.Err, r.Err != nil
	})
}
