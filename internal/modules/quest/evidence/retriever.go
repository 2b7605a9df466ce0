// Package evidence gathers corroborating facts about a stop from external
// reference sources. It never synthesises facts: a source that yields nothing
// contributes nothing.
package evidence

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/observability"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

type Query struct {
	SpotID      string
	SpotName    string
	Lat         float64
	Lng         float64
	OfficialURL string
}

// Source is one external reference. A nil slice with nil error means the
// source legitimately had nothing.
type Source interface {
	Type() quest.SourceType
	Fetch(ctx context.Context, q Query) ([]quest.Evidence, error)
}

// DescriptionSource is implemented by sources that also yield the official
// description of a stop.
type DescriptionSource interface {
	Description(ctx context.Context, q Query) (string, error)
}

type Retriever struct {
	log        *logger.Logger
	sources    []Source
	perSource  time.Duration
	maxPerSpot int
}

type Option func(*Retriever)

func WithSourceTimeout(d time.Duration) Option { return func(r *Retriever) { r.perSource = d } }

func WithMaxEvidences(n int) Option { return func(r *Retriever) { r.maxPerSpot = n } }

func NewRetriever(log *logger.Logger, sources []Source, opts ...Option) *Retriever {
	if log == nil {
		log = logger.Nop()
	}
	r := &Retriever{
		log:        log.With("component", "EvidenceRetriever"),
		sources:    sources,
		perSource:  15 * time.Second,
		maxPerSpot: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve queries every source concurrently. A failing source is logged and
// skipped; Retrieve itself never fails.
func (r *Retriever) Retrieve(ctx context.Context, q Query) quest.EvidencePack {
	pack := quest.EvidencePack{SpotID: q.SpotID, SpotName: q.SpotName}
	if r == nil || len(r.sources) == 0 {
		return pack
	}

	results := make([][]quest.Evidence, len(r.sources))
	descriptions := make([]string, len(r.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range r.sources {
		i, src := i, src
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, r.perSource)
			defer cancel()
			ev, err := src.Fetch(sctx, q)
			if err != nil {
				r.log.Warn("evidence source failed", "source", src.Type(), "spot", q.SpotName, "error", err)
				return nil
			}
			results[i] = ev
			if ds, ok := src.(DescriptionSource); ok {
				desc, err := ds.Description(sctx, q)
				if err == nil {
					descriptions[i] = strings.TrimSpace(desc)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	seen := map[string]bool{}
	for i, ev := range results {
		observability.Current().AddEvidence(string(r.sources[i].Type()), len(ev))
		for _, e := range ev {
			key := normalize(e.Content)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if e.Confidence == 0 {
				e.Confidence = quest.ConfidenceFor(e.SourceType)
			}
			pack.Evidences = append(pack.Evidences, e)
		}
		if pack.OfficialDescription == "" && descriptions[i] != "" {
			pack.OfficialDescription = descriptions[i]
		}
	}
	pack.Evidences = pack.Top(r.maxPerSpot)
	return pack
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
