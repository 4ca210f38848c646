package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"asmcorpus/internal/pipeline"
	"asmcorpus/internal/ui"
)

type runOutcome struct {
	report pipeline.Report
	err    error
}

func runPipelineWithUI(ctx context.Context, title string, req *pipeline.Request) (pipeline.Report, error) {
	if req == nil {
		return pipeline.Report{}, fmt.Errorf("missing pipeline request")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan runOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = pipeline.ChannelSink{Ch: events}
		report, err := pipeline.Run(ctx, &reqCopy)
		outcomeCh <- runOutcome{report: report, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, uiStages(req), events, ui.WithInterrupt(cancel))
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	if uiErr != nil {
		cancel()
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil {
		return outcome.report, uiErr
	}
	return outcome.report, outcome.err
}

func uiStages(req *pipeline.Request) []pipeline.Stage {
	stages := []pipeline.Stage{pipeline.StageCollect}
	if req.Cache != nil {
		stages = append(stages, pipeline.StageReplay)
	}
	stages = append(stages, pipeline.StageCompile)
	if req.Strategy.Disassembles() {
		stages = append(stages, pipeline.StageDisassemble)
	}
	return append(stages, pipeline.StageWrite)
}
