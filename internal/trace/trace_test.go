package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"off", LevelOff, false},
		{"PHASE", LevelPhase, false},
		{"detail", LevelDetail, false},
		{"debug", LevelDebug, false},
		{"loud", LevelOff, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLevelScopeFiltering(t *testing.T) {
	if !LevelPhase.ShouldEmit(ScopeStage) {
		t.Fatalf("phase level should emit stage events")
	}
	if LevelPhase.ShouldEmit(ScopeSample) {
		t.Fatalf("phase level should not emit sample events")
	}
	if !LevelDetail.ShouldEmit(ScopeSample) {
		t.Fatalf("detail level should emit sample events")
	}
	if LevelDetail.ShouldEmit(ScopeTool) {
		t.Fatalf("detail level should not emit tool events")
	}
}

func TestRingTracerWraps(t *testing.T) {
	ring := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		Point(ring, ScopeSample, name, "", 0, nil)
	}
	snap := ring.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(snap))
	}
	got := []string{snap[0].Name, snap[1].Name, snap[2].Name}
	want := []string{"c", "d", "e"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot = %v, want %v", got, want)
		}
	}
}

func TestStreamTracerSpan(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatText)
	span := Begin(tr, ScopeStage, "compile", 0)
	Point(tr, ScopeSample, "hidden", "", span.ID(), nil)
	span.WithExtra("tasks", "2").End("ok")

	out := buf.String()
	if !strings.Contains(out, "→ compile") || !strings.Contains(out, "← compile (ok) {tasks=2}") {
		t.Fatalf("unexpected trace output:\n%s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("sample-scope point leaked at phase level:\n%s", out)
	}
}

func TestFailureBypassesScope(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelError, FormatNDJSON)
	Point(tr, ScopeStage, "stage", "", 0, nil)
	Failure(tr, "compile failed", "exit status 1", 0, map[string]string{"output": "a.o"})
	out := buf.String()
	if strings.Contains(out, `"name":"stage"`) {
		t.Fatalf("stage point should be filtered at error level: %s", out)
	}
	if !strings.Contains(out, `"name":"compile failed"`) || !strings.Contains(out, `"output":"a.o"`) {
		t.Fatalf("failure event missing: %s", out)
	}
}

func TestContextPropagation(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Fatalf("empty context should yield Nop tracer")
	}
	ring := NewRingTracer(8, LevelDebug)
	ctx := WithTracer(context.Background(), ring)
	if FromContext(ctx) != Tracer(ring) {
		t.Fatalf("tracer not propagated")
	}
	span := Begin(ring, ScopeDriver, "run", 0)
	ctx = WithSpan(ctx, span)
	if CurrentSpan(ctx) != span.ID() {
		t.Fatalf("CurrentSpan = %d, want %d", CurrentSpan(ctx), span.ID())
	}
}

func TestInflightTracksOpenSpans(t *testing.T) {
	ring := NewRingTracer(16, LevelDebug)
	in := NewInflight(ring)

	stage := Begin(in, ScopeStage, "compile", 0)
	gcc := BeginTool(in, "gcc", "add", stage.ID())
	objdump := BeginTool(in, "objdump", "sub", stage.ID())
	objdump.End("ok")

	open := in.Open(time.Now())
	if len(open) != 2 {
		t.Fatalf("open = %+v, want 2 spans", open)
	}
	if open[0].Scope != ScopeTool || open[0].Name != "gcc" || open[0].Detail != "add" {
		t.Fatalf("finest open span = %+v, want gcc add", open[0])
	}
	if open[1].Name != "compile" {
		t.Fatalf("second open span = %+v", open[1])
	}

	gcc.End("ok")
	stage.End("")
	if open := in.Open(time.Now()); len(open) != 0 {
		t.Fatalf("spans left open: %+v", open)
	}
	if len(ring.Snapshot()) != 6 {
		t.Fatalf("events not forwarded: %d", len(ring.Snapshot()))
	}
}

func TestHeartbeatNamesRunningTool(t *testing.T) {
	in := NewInflight(NewRingTracer(16, LevelDebug))
	h := &Heartbeat{tracer: in}

	detail, extra := h.describe(1, time.Now())
	if detail != "#1" || extra["open"] != "0" {
		t.Fatalf("idle heartbeat = %q %v", detail, extra)
	}

	span := BeginTool(in, "gcc", "add", 0)
	defer span.End("")
	detail, extra = h.describe(2, time.Now().Add(3*time.Second))
	if !strings.HasPrefix(detail, "#2 gcc add for ") || extra["running"] != "gcc add" || extra["open"] != "1" {
		t.Fatalf("busy heartbeat = %q %v", detail, extra)
	}

	plain := &Heartbeat{tracer: NewRingTracer(4, LevelDebug)}
	if detail, extra := plain.describe(3, time.Now()); detail != "#3" || extra != nil {
		t.Fatalf("untracked heartbeat = %q %v", detail, extra)
	}
}

func TestRingFailures(t *testing.T) {
	ring := NewRingTracer(8, LevelError)
	Point(ring, ScopeSample, "collect:duplicate", "a", 0, nil)
	Failure(ring, "compile:failed", "exit status 1", 0, map[string]string{"stem": "a"})
	Failure(ring, "disassemble:failed", "bad object", 0, map[string]string{"stem": "b"})

	failures := ring.Failures()
	if len(failures) != 2 || failures[0].Extra["stem"] != "a" || failures[1].Name != "disassemble:failed" {
		t.Fatalf("failures = %+v", failures)
	}
	if got := string(FormatEvent(&failures[0], FormatText)); !strings.Contains(got, "✗ compile:failed (exit status 1)") {
		t.Fatalf("text form = %q", got)
	}
}

func TestNewWrapsForHeartbeat(t *testing.T) {
	tr, err := New(Config{Level: LevelPhase, Mode: ModeRing, Heartbeat: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := tr.(*Inflight); !ok {
		t.Fatalf("tracer = %T, want *Inflight", tr)
	}
	if RingOnly(tr) == nil {
		t.Fatalf("ring not reachable through Inflight")
	}

	var buf bytes.Buffer
	both, err := New(Config{Level: LevelPhase, Mode: ModeBoth, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if RingOnly(both) != nil {
		t.Fatalf("streamed tracer reported as ring-only")
	}
}
