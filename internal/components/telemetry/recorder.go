package telemetry

import (
	"strings"
	"sync"
)

type EventKind int

const (
	EVENT_BROKEN EventKind = iota
	EVENT_WARNING
	EVENT_DEBUG
	EVENT_COUNT
)

type Event struct {
	Kind   EventKind
	ID     string
	Params []any
	Count  int64
}

// Recorder is an in-memory API used by tests to assert on reports.
type Recorder struct {
	mutex  sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(e Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.record(Event{Kind: EVENT_BROKEN, ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.record(Event{Kind: EVENT_WARNING, ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.record(Event{Kind: EVENT_DEBUG, ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.record(Event{Kind: EVENT_COUNT, ID: id, Count: count})
}

// Events returns a copy of every event of the given kind.
func (r *Recorder) Events(kind EventKind) []Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether an event of the given kind has an id ending with suffix.
func (r *Recorder) Has(kind EventKind, suffix string) bool {
	for _, e := range r.Events(kind) {
		if strings.HasSuffix(e.ID, suffix) {
			return true
		}
	}
	return false
}
