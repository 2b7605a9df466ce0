package steps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/evidence"
	"github.com/yungbote/questweaver/internal/modules/quest/geo"
	"github.com/yungbote/questweaver/internal/modules/quest/prompts"
)

var ErrNoCandidates = errors.New("language model proposed no candidate stops")

// DefaultLocation is used when neither the geocoder nor the model can place
// a stop (Tokyo Station). The request origin is never used as a stand-in.
var DefaultLocation = quest.LatLng{Lat: 35.681236, Lng: 139.767125}

const (
	DefaultEvidencePerSpot = 3
	enrichConcurrency      = 4
)

type StopSelectInput struct {
	Request            quest.QuestGenerationRequest
	MaxInterStopMeters float64
	EvidencePerSpot    int
}

type StopSelectOutput struct {
	Spots []quest.SpotInput
	// Evidence is keyed by final spot id.
	Evidence map[string]quest.EvidencePack
	// RadiusApplied is false when no origin was given or the origin filter
	// would have removed every candidate.
	RadiusApplied bool
	Candidates    int
}

type candidateStop struct {
	Name        string   `json:"name"`
	Summary     string   `json:"summary"`
	Facts       []string `json:"facts"`
	ThemeTags   []string `json:"theme_tags"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	OfficialURL string   `json:"official_url"`
}

type stopCandidatesResponse struct {
	Spots []candidateStop `json:"spots"`
}

// Validate drops unnamed candidates and repeats of a name already proposed.
func (r *stopCandidatesResponse) Validate() error {
	valid := r.Spots[:0]
	seen := map[string]bool{}
	for _, c := range r.Spots {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		valid = append(valid, c)
	}
	r.Spots = valid
	if len(r.Spots) == 0 {
		return errors.New("spots: no named candidates")
	}
	return nil
}

// SelectCandidateStops asks the model for stops, geocodes and enriches them,
// applies the origin radius and chains them into a walkable order. It fails
// only when the model yields no usable candidates at all.
func SelectCandidateStops(ctx context.Context, deps Deps, in StopSelectInput) (StopSelectOutput, error) {
	req := in.Request
	pin := prompts.Input{
		Prompt:       req.Prompt,
		Difficulty:   string(req.Difficulty),
		SpotCount:    req.SpotCount,
		QuestTheme:   req.QuestTheme(),
		SupportLines: req.PromptSupport.Lines(),
	}
	if req.CenterLocation != nil {
		pin.CenterHint = fmt.Sprintf("within %.1f km of lat %.5f, lng %.5f", radiusKm(req), req.CenterLocation.Lat, req.CenterLocation.Lng)
	}
	var resp stopCandidatesResponse
	if err := generate(ctx, deps, "spot_selection", prompts.PromptStopCandidates, pin, &resp, map[string]any{"spot_count": req.SpotCount}); err != nil {
		return StopSelectOutput{}, fmt.Errorf("%w: %v", ErrNoCandidates, err)
	}

	candidates := make([]quest.SpotInput, len(resp.Spots))
	packs := make([]quest.EvidencePack, len(resp.Spots))
	perSpot := in.EvidencePerSpot
	if perSpot <= 0 {
		perSpot = DefaultEvidencePerSpot
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, c := range resp.Spots {
		i, c := i, c
		g.Go(func() error {
			spot := quest.SpotInput{
				Name:        strings.TrimSpace(c.Name),
				Summary:     strings.TrimSpace(c.Summary),
				Facts:       dedupeStrings(c.Facts),
				ThemeTags:   dedupeStrings(c.ThemeTags),
				OfficialURL: strings.TrimSpace(c.OfficialURL),
			}
			loc := resolveLocation(gctx, deps, spot.Name, c, req.CenterLocation)
			if err := gctx.Err(); err != nil {
				return err
			}
			spot.Lat, spot.Lng = loc.Lat, loc.Lng

			if deps.Evidence != nil {
				pack := deps.Evidence.Retrieve(gctx, evidence.Query{
					SpotID:      quest.SpotID(i),
					SpotName:    spot.Name,
					Lat:         spot.Lat,
					Lng:         spot.Lng,
					OfficialURL: spot.OfficialURL,
				})
				spot.Facts = EnrichFacts(spot.Facts, pack, perSpot)
				packs[i] = pack
			}
			candidates[i] = spot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StopSelectOutput{}, err
	}
	if err := ctx.Err(); err != nil {
		return StopSelectOutput{}, err
	}

	byName := map[string]quest.EvidencePack{}
	for i, p := range packs {
		byName[candidates[i].Name] = p
	}

	out := StopSelectOutput{Candidates: len(candidates), Evidence: map[string]quest.EvidencePack{}}
	filtered := candidates
	if req.CenterLocation != nil {
		filtered, out.RadiusApplied = geo.FilterByRadius(candidates, *req.CenterLocation, radiusKm(req)*1000)
		if !out.RadiusApplied {
			deps.log().Warn("origin radius filter left no stops; using unfiltered candidates",
				"radius_km", radiusKm(req), "candidates", len(candidates))
		}
	}
	chain := geo.ChainNearest(filtered, in.MaxInterStopMeters)
	if req.SpotCount > 0 && len(chain) > req.SpotCount {
		chain = chain[:req.SpotCount]
	}
	out.Spots = quest.AssignIDs(chain)
	for _, s := range out.Spots {
		p := byName[s.Name]
		p.SpotID, p.SpotName = s.ID, s.Name
		out.Evidence[s.ID] = p
	}
	deps.log().Info("stops selected",
		"candidates", len(candidates),
		"after_radius", len(filtered),
		"selected", len(out.Spots),
	)
	return out, nil
}

func radiusKm(req quest.QuestGenerationRequest) float64 {
	if req.RadiusKm > 0 {
		return req.RadiusKm
	}
	return 1
}

// resolveLocation prefers the geocoder, then the model's own guess, then
// DefaultLocation. near only biases the geocoder search.
func resolveLocation(ctx context.Context, deps Deps, name string, c candidateStop, near *quest.LatLng) quest.LatLng {
	if deps.Geocoder != nil {
		place, err := deps.Geocoder.Search(ctx, name, near)
		if err != nil {
			deps.log().Warn("geocode failed", "spot", name, "error", err)
		} else if place != nil {
			return quest.LatLng{Lat: place.Lat, Lng: place.Lng}
		}
	}
	if c.Lat != nil && c.Lng != nil && validCoordinate(*c.Lat, *c.Lng) {
		return quest.LatLng{Lat: *c.Lat, Lng: *c.Lng}
	}
	return DefaultLocation
}

func validCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || (lat == 0 && lng == 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// EnrichFacts appends up to perSpot evidence contents, capped at
// quest.MaxFactsPerSpot facts in total.
func EnrichFacts(facts []string, pack quest.EvidencePack, perSpot int) []string {
	out := dedupeStrings(facts)
	for _, e := range pack.Top(perSpot) {
		out = append(out, e.Content)
	}
	out = dedupeStrings(out)
	if len(out) > quest.MaxFactsPerSpot {
		out = out[:quest.MaxFactsPerSpot]
	}
	return out
}
