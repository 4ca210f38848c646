package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"asmcorpus/internal/pipeline"
)

func TestProgressModelCounts(t *testing.T) {
	ch := make(chan pipeline.Event)
	m := NewProgressModel("preprocess", []pipeline.Stage{pipeline.StageCompile, pipeline.StageWrite}, ch).(*progressModel)

	events := []pipeline.Event{
		{Stage: pipeline.StageCompile, Status: pipeline.StatusWorking},
		{Stage: pipeline.StageCompile, Status: pipeline.StatusQueued, Total: 2},
		{File: "a.cpp", Stage: pipeline.StageCompile, Status: pipeline.StatusWorking},
		{File: "b.cpp", Stage: pipeline.StageCompile, Status: pipeline.StatusWorking},
		{File: "a.cpp", Stage: pipeline.StageCompile, Status: pipeline.StatusDone},
		{File: "b.cpp", Stage: pipeline.StageCompile, Status: pipeline.StatusError, Err: errors.New("g++ exited 1\nmore")},
	}
	for _, ev := range events {
		m.Update(eventMsg(ev))
	}

	item := m.stages[0]
	if item.done != 1 || item.failed != 1 || item.total != 2 {
		t.Fatalf("unexpected counters: %+v", item)
	}
	if len(m.active) != 0 {
		t.Fatalf("finished files still active: %v", m.active)
	}
	if got := m.percent(); got != 0.5 {
		t.Fatalf("percent = %v, want 0.5", got)
	}
	view := m.View()
	for _, want := range []string{"compiling", "2/2", "1 failed", "compile b.cpp: g++ exited 1"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "more") {
		t.Fatalf("failure should show the first line only:\n%s", view)
	}

	m.Update(doneMsg{})
	if !strings.Contains(m.View(), "done: preprocess") {
		t.Fatalf("missing done header:\n%s", m.View())
	}
}

func TestProgressModelInterrupt(t *testing.T) {
	calls := 0
	m := NewProgressModel("x", []pipeline.Stage{pipeline.StageWrite}, nil, WithInterrupt(func() { calls++ })).(*progressModel)
	for range 2 {
		m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	}
	if calls != 1 {
		t.Fatalf("interrupt called %d times, want 1", calls)
	}
	if !strings.Contains(m.View(), "(stopping)") {
		t.Fatalf("missing stopping marker:\n%s", m.View())
	}
}

func TestProgressModelIgnoresUnknownStage(t *testing.T) {
	m := NewProgressModel("x", []pipeline.Stage{pipeline.StageWrite}, nil).(*progressModel)
	m.Update(eventMsg{Stage: pipeline.StageCompile, Status: pipeline.StatusDone})
	if m.stages[0].status != "pending" {
		t.Fatalf("unexpected status %q", m.stages[0].status)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 6, "abc..."},
		{"abcdefghij", 4, "a..."},
		{"日本語テキスト", 7, "日本..."},
		{"abcdef", 2, "ab"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
