package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/platform/httpx"
)

const defaultWikiBase = "https://ja.wikipedia.org"

type WikiConfig struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	// GeoRadiusMeters bounds the nearby-article search.
	GeoRadiusMeters int
}

func (c WikiConfig) normalized() WikiConfig {
	if c.BaseURL == "" {
		c.BaseURL = defaultWikiBase
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.GeoRadiusMeters <= 0 {
		c.GeoRadiusMeters = 300
	}
	return c
}

func getJSON(ctx context.Context, hc *http.Client, rawURL, ua string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, err
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return false, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &httpx.StatusError{Service: "wikipedia", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("wikipedia decode: %w", err)
	}
	return true, nil
}

// WikiSummary reads the REST page summary for the stop's name.
type WikiSummary struct{ cfg WikiConfig }

func NewWikiSummary(cfg WikiConfig) *WikiSummary { return &WikiSummary{cfg: cfg.normalized()} }

func (w *WikiSummary) Type() quest.SourceType { return quest.SourceWikipediaSummary }

type summaryResponse struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (w *WikiSummary) Fetch(ctx context.Context, q Query) ([]quest.Evidence, error) {
	title := strings.TrimSpace(q.SpotName)
	if title == "" {
		return nil, nil
	}
	var resp summaryResponse
	u := w.cfg.BaseURL + "/api/rest_v1/page/summary/" + url.PathEscape(title)
	found, err := getJSON(ctx, w.cfg.HTTPClient, u, w.cfg.UserAgent, &resp)
	if err != nil || !found || resp.Type == "disambiguation" {
		return nil, err
	}
	var out []quest.Evidence
	for _, sentence := range splitSentences(resp.Extract) {
		out = append(out, quest.NewEvidence(sentence, quest.SourceWikipediaSummary, resp.ContentURLs.Desktop.Page))
	}
	return out, nil
}

// WikiGeosearch lists articles near the stop's coordinate.
type WikiGeosearch struct{ cfg WikiConfig }

func NewWikiGeosearch(cfg WikiConfig) *WikiGeosearch { return &WikiGeosearch{cfg: cfg.normalized()} }

func (w *WikiGeosearch) Type() quest.SourceType { return quest.SourceWikipediaGeosearch }

type geosearchResponse struct {
	Query struct {
		Geosearch []struct {
			Title string  `json:"title"`
			Dist  float64 `json:"dist"`
		} `json:"geosearch"`
	} `json:"query"`
}

func (w *WikiGeosearch) Fetch(ctx context.Context, q Query) ([]quest.Evidence, error) {
	if q.Lat == 0 && q.Lng == 0 {
		return nil, nil
	}
	v := url.Values{}
	v.Set("action", "query")
	v.Set("list", "geosearch")
	v.Set("gscoord", fmt.Sprintf("%f|%f", q.Lat, q.Lng))
	v.Set("gsradius", fmt.Sprintf("%d", w.cfg.GeoRadiusMeters))
	v.Set("gslimit", "5")
	v.Set("format", "json")
	var resp geosearchResponse
	found, err := getJSON(ctx, w.cfg.HTTPClient, w.cfg.BaseURL+"/w/api.php?"+v.Encode(), w.cfg.UserAgent, &resp)
	if err != nil || !found {
		return nil, err
	}
	var out []quest.Evidence
	for _, hit := range resp.Query.Geosearch {
		if hit.Title == "" || hit.Title == q.SpotName {
			continue
		}
		content := fmt.Sprintf("%sから約%.0fmの場所に「%s」がある。", q.SpotName, hit.Dist, hit.Title)
		out = append(out, quest.NewEvidence(content, quest.SourceWikipediaGeosearch, ""))
	}
	return out, nil
}

// splitSentences breaks a Japanese or English paragraph into sentences.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); len([]rune(s)) >= 8 {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, r := range text {
		b.WriteRune(r)
		if r == '。' || r == '\n' {
			flush()
		}
	}
	flush()
	return out
}
