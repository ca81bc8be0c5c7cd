package gmaps

import (
	"encoding/json"
	"fmt"

	olc "github.com/google/open-location-code/go"
)

const plusCodeLength = 10

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Geometry struct {
	Location LatLng `json:"location"`
}

type OpeningHours struct {
	OpenNow     bool     `json:"open_now"`
	WeekdayText []string `json:"weekday_text"`
}

type PlaceReview struct {
	AuthorName string `json:"author_name"`
	Rating     int    `json:"rating"`
	Text       string `json:"text"`
}

type PlaceResult struct {
	Name                     string        `json:"name"`
	FormattedAddress         string        `json:"formatted_address"`
	InternationalPhoneNumber string        `json:"international_phone_number"`
	Website                  string        `json:"website"`
	Rating                   float64       `json:"rating"`
	UserRatingsTotal         int           `json:"user_ratings_total"`
	Geometry                 *Geometry     `json:"geometry,omitempty"`
	OpeningHours             *OpeningHours `json:"opening_hours,omitempty"`
	Reviews                  []PlaceReview `json:"reviews"`
}

// PlaceDetails is a typed view over a place details response. The raw
// response stays the source of truth; this is only used for display.
type PlaceDetails struct {
	Result       PlaceResult `json:"result"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

func ParsePlaceDetails(raw json.RawMessage) (PlaceDetails, error) {
	var d PlaceDetails
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("could not decode place details: %w", err)
	}

	return d, nil
}

// PlusCode returns the open location code of the place, or an empty string
// when the response carries no geometry.
func (d *PlaceDetails) PlusCode() string {
	if d.Result.Geometry == nil {
		return ""
	}

	loc := d.Result.Geometry.Location

	return olc.Encode(loc.Lat, loc.Lng, plusCodeLength)
}
