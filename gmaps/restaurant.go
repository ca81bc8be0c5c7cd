package gmaps

// Restaurant is a single listing entry scraped from a results feed.
type Restaurant struct {
	Name    string `json:"name"`
	Rating  string `json:"rating"`
	Reviews string `json:"reviews"`
	Details string `json:"details"`
}

func (r *Restaurant) Validate() error {
	if r.Name == "" {
		return &FieldError{Field: "name", Err: ErrFieldEmpty}
	}

	return nil
}

func (r Restaurant) CsvHeaders() []string {
	return []string{
		"name",
		"rating",
		"reviews",
		"details",
	}
}

func (r Restaurant) CsvRow() []string {
	return []string{
		r.Name,
		r.Rating,
		r.Reviews,
		r.Details,
	}
}

// RestaurantLocation is a listing entry read with the location layout.
type RestaurantLocation struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

func (r *RestaurantLocation) Validate() error {
	if r.Name == "" {
		return &FieldError{Field: "name", Err: ErrFieldEmpty}
	}

	return nil
}

func (r RestaurantLocation) CsvHeaders() []string {
	return []string{
		"name",
		"location",
	}
}

func (r RestaurantLocation) CsvRow() []string {
	return []string{
		r.Name,
		r.Location,
	}
}
