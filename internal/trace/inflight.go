package trace

import (
	"sort"
	"sync"
	"time"
)

// OpenSpan is a span that has begun but not yet ended.
type OpenSpan struct {
	Scope  Scope
	Name   string
	Detail string // sample stem for tool spans
	Age    time.Duration
}

type openSpan struct {
	scope   Scope
	name    string
	detail  string
	started time.Time
}

// Inflight forwards events to another tracer and remembers the spans still
// open, so heartbeats can name the compile or disassemble that is running.
type Inflight struct {
	next Tracer
	mu   sync.Mutex
	open map[uint64]openSpan
}

// NewInflight wraps next.
func NewInflight(next Tracer) *Inflight {
	if next == nil {
		next = Nop
	}
	return &Inflight{next: next, open: make(map[uint64]openSpan)}
}

// Emit records span boundaries and forwards ev.
func (t *Inflight) Emit(ev *Event) {
	if ev == nil {
		return
	}
	t.mu.Lock()
	switch ev.Kind {
	case KindSpanBegin:
		t.open[ev.SpanID] = openSpan{scope: ev.Scope, name: ev.Name, detail: ev.Detail, started: ev.Time}
	case KindSpanEnd:
		delete(t.open, ev.SpanID)
	}
	t.mu.Unlock()
	t.next.Emit(ev)
}

// Open lists the spans open at now, finest scope first and then longest
// running first.
func (t *Inflight) Open(now time.Time) []OpenSpan {
	t.mu.Lock()
	out := make([]OpenSpan, 0, len(t.open))
	for _, s := range t.open {
		out = append(out, OpenSpan{Scope: s.scope, Name: s.name, Detail: s.detail, Age: now.Sub(s.started)})
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope > out[j].Scope
		}
		if out[i].Age != out[j].Age {
			return out[i].Age > out[j].Age
		}
		return out[i].Name+out[i].Detail < out[j].Name+out[j].Detail
	})
	return out
}

// Unwrap returns the wrapped tracer.
func (t *Inflight) Unwrap() Tracer { return t.next }

// Flush flushes the wrapped tracer.
func (t *Inflight) Flush() error { return t.next.Flush() }

// Close closes the wrapped tracer.
func (t *Inflight) Close() error { return t.next.Close() }

// Level returns the wrapped tracer's level.
func (t *Inflight) Level() Level { return t.next.Level() }

// Enabled reports whether the wrapped tracer is active.
func (t *Inflight) Enabled() bool { return t.next.Enabled() }
