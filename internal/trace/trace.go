// Package trace carries the ordered, append-only record of what the render
// pipeline did. Events flow from the renderer into a Sink; sinks may record,
// log, pace or fan out events but never mutate them.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/sfclive/internal/logging"
)

// Status classifies an event.
type Status string

const (
	StatusSuccess Status = "success"
	StatusDanger  Status = "danger"
)

// Event is one trace entry.
type Event struct {
	Seq    int       `json:"seq"`
	Stage  string    `json:"stage"`
	Status Status    `json:"status"`
	Done   bool      `json:"done"`
	Detail []string  `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// Sink receives trace events in emission order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Emitter numbers events and forwards them to a sink.
type Emitter struct {
	mu   sync.Mutex
	seq  int
	sink Sink
	now  func() time.Time
}

// NewEmitter wraps sink; a nil sink discards.
func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = Discard
	}
	return &Emitter{sink: sink, now: time.Now}
}

// Success emits a non-final success event.
func (e *Emitter) Success(stage string, detail ...string) {
	e.emit(stage, StatusSuccess, false, detail)
}

// Done emits the final success event.
func (e *Emitter) Done(stage string, detail ...string) {
	e.emit(stage, StatusSuccess, true, detail)
}

// Fail emits the final danger event.
func (e *Emitter) Fail(stage string, detail ...string) {
	e.emit(stage, StatusDanger, true, detail)
}

func (e *Emitter) emit(stage string, status Status, done bool, detail []string) {
	e.mu.Lock()
	e.seq++
	ev := Event{
		Seq:    e.seq,
		Stage:  stage,
		Status: status,
		Done:   done,
		Detail: append([]string(nil), detail...),
		Time:   e.now(),
	}
	e.mu.Unlock()

	e.sink.Emit(ev)
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit appends e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Stages returns the stage labels in order.
func (r *Recorder) Stages() []string {
	events := r.Events()
	stages := make([]string, len(events))
	for i, e := range events {
		stages[i] = e.Stage
	}
	return stages
}

// Last returns the most recent event.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Fanout forwards each event to every sink in order.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(e Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(e)
		}
	}
}

// LogSink writes events to a structured logger at debug level, and danger
// events at warn level.
type LogSink struct {
	Logger    logging.Logger
	DetailMax int
}

// Emit implements Sink.
func (s LogSink) Emit(e Event) {
	if s.Logger == nil {
		return
	}
	limit := s.DetailMax
	if limit == 0 {
		limit = 200
	}
	detail := make([]string, len(e.Detail))
	for i, d := range e.Detail {
		detail[i] = logging.Truncate(d, limit)
	}

	ctx := context.Background()
	if e.Status == StatusDanger {
		s.Logger.Warn(ctx, nil, e.Stage, "seq", e.Seq, "done", e.Done, "detail", detail)
		return
	}
	s.Logger.Debug(ctx, e.Stage, "seq", e.Seq, "done", e.Done, "detail", detail)
}

// Scheduler is the subset of the throttled scheduler used for pacing.
type Scheduler interface {
	Add(task func()) error
}

// Paced delivers each event to sink as a separate scheduled task, so a human
// can follow the pipeline stage by stage.
type Paced struct {
	Sink      Sink
	Scheduler Scheduler
}

// Emit implements Sink. Events rejected by a closed scheduler are dropped.
func (p Paced) Emit(e Event) {
	if p.Sink == nil {
		return
	}
	if p.Scheduler == nil {
		p.Sink.Emit(e)
		return
	}
	_ = p.Scheduler.Add(func() { p.Sink.Emit(e) })
}
