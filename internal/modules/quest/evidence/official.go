package evidence

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/platform/httpx"
)

// OfficialPage scrapes the stop's own website for its self-description.
type OfficialPage struct {
	hc        *http.Client
	userAgent string

	mu    sync.Mutex
	pages map[string]officialContent
}

type officialContent struct {
	description string
	paragraphs  []string
}

func NewOfficialPage(hc *http.Client, userAgent string) *OfficialPage {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &OfficialPage{hc: hc, userAgent: userAgent, pages: map[string]officialContent{}}
}

func (o *OfficialPage) Type() quest.SourceType { return quest.SourceOfficialPage }

func (o *OfficialPage) Fetch(ctx context.Context, q Query) ([]quest.Evidence, error) {
	page, err := o.load(ctx, q.OfficialURL)
	if err != nil {
		return nil, err
	}
	var out []quest.Evidence
	for _, p := range page.paragraphs {
		out = append(out, quest.NewEvidence(p, quest.SourceOfficialPage, q.OfficialURL))
	}
	return out, nil
}

func (o *OfficialPage) Description(ctx context.Context, q Query) (string, error) {
	page, err := o.load(ctx, q.OfficialURL)
	if err != nil {
		return "", err
	}
	return page.description, nil
}

func (o *OfficialPage) load(ctx context.Context, rawURL string) (officialContent, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return officialContent{}, nil
	}
	o.mu.Lock()
	cached, ok := o.pages[rawURL]
	o.mu.Unlock()
	if ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return officialContent{}, err
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}
	resp, err := o.hc.Do(req)
	if err != nil {
		return officialContent{}, fmt.Errorf("fetching official page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return officialContent{}, &httpx.StatusError{Service: "official_page", StatusCode: resp.StatusCode}
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return officialContent{}, fmt.Errorf("parsing official page HTML: %w", err)
	}
	content := extractOfficialContent(doc)
	o.mu.Lock()
	o.pages[rawURL] = content
	o.mu.Unlock()
	return content, nil
}

const maxOfficialParagraphs = 3

// extractOfficialContent reads the meta description and the first few
// substantial paragraphs of a page.
func extractOfficialContent(doc *goquery.Document) officialContent {
	var c officialContent
	for _, sel := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			c.description = strings.TrimSpace(v)
			break
		}
	}
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.Join(strings.Fields(p.Text()), " ")
		if len([]rune(text)) >= 20 {
			c.paragraphs = append(c.paragraphs, text)
		}
		return len(c.paragraphs) < maxOfficialParagraphs
	})
	return c
}
