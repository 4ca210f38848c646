package pipeline

import "time"

// Stage describes a high-level pipeline phase.
type Stage string

const (
	// StageCollect copies and cleans corpus sources.
	StageCollect Stage = "collect"
	// StageReplay restores cached sample outcomes.
	StageReplay Stage = "cache"
	// StageCompile runs the compiler over collected sources.
	StageCompile Stage = "compile"
	// StageDisassemble runs objdump over compiled objects.
	StageDisassemble Stage = "disassemble"
	// StageWrite standardizes assembly and writes the dataset.
	StageWrite Stage = "write"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageCollect, StageReplay, StageCompile, StageDisassemble, StageWrite}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the task is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the task is currently working.
	StatusWorking Status = "working"
	// StatusDone indicates the task is done.
	StatusDone Status = "done"
	// StatusError indicates the task encountered an error.
	StatusError Status = "error"
	// StatusCached indicates the task outcome came from the cache.
	StatusCached Status = "cached"
)

// Event reports progress for a sample (or for the whole stage when File is empty).
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
	// Total is set on stage-level queued events to the number of tasks.
	Total int
}

// ProgressSink consumes progress events. Workers call OnEvent concurrently.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	if t.stages == nil {
		return false
	}
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	return t.stages[stage]
}

// Total sums every recorded stage.
func (t Timings) Total() time.Duration {
	var total time.Duration
	for _, d := range t.stages {
		total += d
	}
	return total
}
