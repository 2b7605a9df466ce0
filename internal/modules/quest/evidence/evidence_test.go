package evidence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/yungbote/questweaver/internal/domain/quest"
)

type stubSource struct {
	typ quest.SourceType
	ev  []quest.Evidence
	err error
}

func (s stubSource) Type() quest.SourceType { return s.typ }

func (s stubSource) Fetch(context.Context, Query) ([]quest.Evidence, error) { return s.ev, s.err }

func TestRetrieveDegradesOnSourceFailure(t *testing.T) {
	r := NewRetriever(nil, []Source{
		stubSource{typ: quest.SourceOfficialPage, err: errors.New("dns failure")},
		stubSource{typ: quest.SourceWikipediaSummary, ev: []quest.Evidence{
			quest.NewEvidence("雷門は浅草寺の総門である。", quest.SourceWikipediaSummary, ""),
			quest.NewEvidence("雷門は浅草寺の総門である。", quest.SourceWikipediaSummary, ""),
		}},
		stubSource{typ: quest.SourceGeocoder, ev: []quest.Evidence{{Content: "台東区浅草にある。", SourceType: quest.SourceGeocoder}}},
	})
	pack := r.Retrieve(context.Background(), Query{SpotID: "S1", SpotName: "雷門"})
	if pack.SpotID != "S1" || len(pack.Evidences) != 2 {
		t.Fatalf("unexpected pack: %#v", pack)
	}
	if pack.Evidences[0].Confidence != 0.85 || pack.Evidences[1].Confidence != 0.6 {
		t.Fatalf("expected confidence ordering from source table, got %#v", pack.Evidences)
	}
}

func TestRetrieveWithNoSources(t *testing.T) {
	pack := NewRetriever(nil, nil).Retrieve(context.Background(), Query{SpotID: "S2", SpotName: "x"})
	if len(pack.Evidences) != 0 || pack.SpotID != "S2" {
		t.Fatalf("expected empty pack, got %#v", pack)
	}
}

func TestWikiSummaryAndGeosearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/rest_v1/page/summary/"):
			_, _ = w.Write([]byte(`{"type":"standard","title":"雷門","extract":"雷門は浅草寺の山門である。正式名称は風雷神門という。","content_urls":{"desktop":{"page":"https://ja.wikipedia.org/wiki/雷門"}}}`))
		case r.URL.Path == "/w/api.php":
			if r.URL.Query().Get("list") != "geosearch" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"query":{"geosearch":[{"title":"雷門","dist":0},{"title":"仲見世","dist":120.4}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := WikiConfig{BaseURL: srv.URL}
	q := Query{SpotID: "S1", SpotName: "雷門", Lat: 35.7111, Lng: 139.7964}

	sum, err := NewWikiSummary(cfg).Fetch(context.Background(), q)
	if err != nil || len(sum) != 2 {
		t.Fatalf("summary: %v %#v", err, sum)
	}
	if sum[1].Content != "正式名称は風雷神門という。" || sum[1].Confidence != 0.85 {
		t.Fatalf("unexpected sentence %#v", sum[1])
	}

	geo, err := NewWikiGeosearch(cfg).Fetch(context.Background(), q)
	if err != nil || len(geo) != 1 {
		t.Fatalf("geosearch: %v %#v", err, geo)
	}
	if !strings.Contains(geo[0].Content, "仲見世") || geo[0].Confidence != 0.7 {
		t.Fatalf("unexpected geosearch evidence %#v", geo[0])
	}
}

func TestWikiSummaryNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	ev, err := NewWikiSummary(WikiConfig{BaseURL: srv.URL}).Fetch(context.Background(), Query{SpotName: "存在しない"})
	if err != nil || ev != nil {
		t.Fatalf("expected nothing, got %v %v", ev, err)
	}
}

const officialHTML = `<html><head><meta name="description" content="東京都内最古の寺院、浅草寺の公式サイト"></head>
<body><main><p>short</p><p>浅草寺は推古天皇36年に創建されたと伝えられる都内最古の寺院です。</p>
<p>雷門の大提灯は高さ3.9メートル、重さ約700キログラムあります。</p></main></body></html>`

func TestExtractOfficialContent(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(officialHTML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := extractOfficialContent(doc)
	if c.description != "東京都内最古の寺院、浅草寺の公式サイト" {
		t.Fatalf("description=%q", c.description)
	}
	if len(c.paragraphs) != 2 {
		t.Fatalf("paragraphs=%#v", c.paragraphs)
	}
}

func TestOfficialPageThroughRetriever(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(officialHTML))
	}))
	defer srv.Close()

	r := NewRetriever(nil, []Source{NewOfficialPage(srv.Client(), "test")})
	pack := r.Retrieve(context.Background(), Query{SpotID: "S1", SpotName: "浅草寺", OfficialURL: srv.URL})
	if pack.OfficialDescription == "" || len(pack.Evidences) != 2 {
		t.Fatalf("unexpected pack %#v", pack)
	}
	if pack.Evidences[0].SourceType != quest.SourceOfficialPage || pack.Evidences[0].Confidence != 0.95 {
		t.Fatalf("unexpected evidence %#v", pack.Evidences[0])
	}
}
