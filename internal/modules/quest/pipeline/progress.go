package pipeline

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/yungbote/questweaver/internal/domain/quest"
)

type EventKind string

const (
	EventProgress     EventKind = "progress"
	EventPlotComplete EventKind = "plot_complete"
	EventSpotComplete EventKind = "spot_complete"
	EventError        EventKind = "error"
)

// Event is one message on the progress stream.
type Event struct {
	Kind     EventKind            `json:"kind"`
	Progress *quest.ProgressEvent `json:"progress,omitempty"`
	Plot     *quest.MainPlot      `json:"plot,omitempty"`
	Scene    *quest.SpotScene     `json:"scene,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// State is the last known pipeline state handed to OnError.
type State struct {
	Step   quest.Step
	Spots  []quest.SpotInput
	Motifs []quest.SpotMotif
	Plot   *quest.MainPlot
	Scenes []quest.SpotScene
}

// Callbacks are invoked synchronously from the generating goroutine and must
// not block. Events, when set, receives the same notifications; sends give
// up when the context is cancelled.
type Callbacks struct {
	OnProgress     func(quest.ProgressEvent)
	OnSpotComplete func(scene quest.SpotScene, index, total int)
	OnPlotComplete func(quest.MainPlot)
	OnError        func(err error, last State)
	Events         chan<- Event
}

// Reporter serialises notifications and keeps progress monotonic.
type Reporter struct {
	ctx     context.Context
	cb      Callbacks
	mu      sync.Mutex
	lastPct int
	lastMsg string
}

func NewReporter(ctx context.Context, cb Callbacks) *Reporter {
	return &Reporter{ctx: ctx, cb: cb}
}

func (r *Reporter) Update(step quest.Step, pct int, msg string) {
	r.update(quest.ProgressEvent{Step: step, Progress: pct, Message: msg})
}

// UpdateRange maps done/total onto the [start, end] percentage band.
func (r *Reporter) UpdateRange(step quest.Step, done, total, start, end int, msg string) {
	if end < start {
		end = start
	}
	pct := start
	if total > 0 {
		if done > total {
			done = total
		}
		pct = start + int(math.Round(float64(done)/float64(total)*float64(end-start)))
	}
	r.update(quest.ProgressEvent{Step: step, Progress: pct, SpotIndex: done, TotalSpots: total, Message: msg})
}

func (r *Reporter) update(ev quest.ProgressEvent) {
	if ev.Progress < 0 {
		ev.Progress = 0
	}
	if ev.Progress > 100 {
		ev.Progress = 100
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Progress < r.lastPct {
		ev.Progress = r.lastPct
	}
	if strings.TrimSpace(ev.Message) == "" {
		ev.Message = r.lastMsg
	}
	r.lastPct, r.lastMsg = ev.Progress, ev.Message
	ev.StepName = ev.Step.Name()
	if r.cb.OnProgress != nil {
		r.cb.OnProgress(ev)
	}
	r.send(Event{Kind: EventProgress, Progress: &ev})
}

func (r *Reporter) Plot(p quest.MainPlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cb.OnPlotComplete != nil {
		r.cb.OnPlotComplete(p)
	}
	r.send(Event{Kind: EventPlotComplete, Plot: &p})
}

func (r *Reporter) Spot(s quest.SpotScene, index, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cb.OnSpotComplete != nil {
		r.cb.OnSpotComplete(s, index, total)
	}
	r.send(Event{Kind: EventSpotComplete, Scene: &s})
}

func (r *Reporter) Fail(err error, last State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cb.OnError != nil {
		r.cb.OnError(err, last)
	}
	r.send(Event{Kind: EventError, Error: err.Error()})
}

func (r *Reporter) send(ev Event) {
	if r.cb.Events == nil {
		return
	}
	select {
	case r.cb.Events <- ev:
	case <-r.ctx.Done():
	}
}
