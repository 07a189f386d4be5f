package client

// Listing is a single property record as served by the listing API.
type Listing struct {
	StreetAddress      string   `json:"streetAddress"`
	AskingPrice        float64  `json:"askingPrice"`
	Fee                float64  `json:"fee"`
	RunningCosts       float64  `json:"runningCosts"`
	ConstructionYear   int      `json:"constructionYear"`
	RenovationYear     int      `json:"renovationYear"`
	Rooms              float64  `json:"rooms"`
	LivingArea         float64  `json:"livingArea"`
	HasBalcony         bool     `json:"hasBalcony"`
	HasElevator        bool     `json:"hasElevator"`
	HousingCooperative bool     `json:"housingCooperative"`
	Lat                *float64 `json:"lat,omitempty"`
	Long               *float64 `json:"long,omitempty"`
	Thumbnail          string   `json:"thumbnail"`
	URL                string   `json:"url"`
	HousingForm        string   `json:"housingForm"`
}

// HasCoordinates reports whether both latitude and longitude are present.
func (l Listing) HasCoordinates() bool {
	return l.Lat != nil && l.Long != nil
}
