// Package quest holds the data model shared by every stage of the quest
// generation pipeline.
package quest

import "fmt"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SpotInput is a candidate real-world stop. Its position in the selected
// route is fixed once stop selection finishes.
type SpotInput struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Summary     string   `json:"summary"`
	Facts       []string `json:"facts"`
	ThemeTags   []string `json:"theme_tags,omitempty"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	OfficialURL string   `json:"official_url,omitempty"`
}

func (s SpotInput) Location() LatLng { return LatLng{Lat: s.Lat, Lng: s.Lng} }

// MaxFactsPerSpot caps facts after evidence enrichment.
const MaxFactsPerSpot = 7

// SpotID returns the stable id for the stop at zero-based index i.
func SpotID(i int) string { return fmt.Sprintf("S%d", i+1) }

// AssignIDs stamps S1..Sn onto spots in their current order.
func AssignIDs(spots []SpotInput) []SpotInput {
	out := make([]SpotInput, len(spots))
	for i, s := range spots {
		s.ID = SpotID(i)
		out[i] = s
	}
	return out
}
