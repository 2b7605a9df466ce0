package quest

import "sort"

type SourceType string

const (
	SourceOfficialPage       SourceType = "official_page"
	SourceWikipediaSummary   SourceType = "wikipedia_summary"
	SourceWikipediaGeosearch SourceType = "wikipedia_geosearch"
	SourceGeocoder           SourceType = "geocoder"
	SourceLLMGenerated       SourceType = "llm_generated"
)

// SourceConfidence maps a source type to its fixed confidence score.
var SourceConfidence = map[SourceType]float64{
	SourceOfficialPage:       0.95,
	SourceWikipediaSummary:   0.85,
	SourceWikipediaGeosearch: 0.7,
	SourceGeocoder:           0.6,
	SourceLLMGenerated:       0.3,
}

func ConfidenceFor(t SourceType) float64 {
	if c, ok := SourceConfidence[t]; ok {
		return c
	}
	return 0
}

type Evidence struct {
	Content    string     `json:"content"`
	SourceType SourceType `json:"source_type"`
	SourceURL  string     `json:"source_url,omitempty"`
	Confidence float64    `json:"confidence"`
}

func NewEvidence(content string, src SourceType, url string) Evidence {
	return Evidence{Content: content, SourceType: src, SourceURL: url, Confidence: ConfidenceFor(src)}
}

type EvidencePack struct {
	SpotID              string     `json:"spot_id"`
	SpotName            string     `json:"spot_name"`
	Evidences           []Evidence `json:"evidences"`
	OfficialDescription string     `json:"official_description,omitempty"`
}

// Top returns up to n evidences ordered by confidence, highest first.
func (p EvidencePack) Top(n int) []Evidence {
	out := append([]Evidence(nil), p.Evidences...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
