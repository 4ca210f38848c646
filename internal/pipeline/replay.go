package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"asmcorpus/internal/cache"
	"asmcorpus/internal/trace"
)

func (p *run) fingerprint() string {
	fp := p.req.Strategy.Fingerprint() + "|" + p.compiler.Fingerprint()
	if p.req.Strategy.Disassembles() {
		fp += "|" + p.disasm.Fingerprint()
	}
	return fp
}

// replay restores cached outcomes for collected records. A successful entry
// writes <stem>.s into the asm dir; a failed entry is reported again without
// running any tool. Either way the sample leaves the compile set.
func (p *run) replay(ctx context.Context) (int, string, error) {
	fp := p.fingerprint()
	parent := trace.CurrentSpan(ctx)
	for _, rec := range p.records {
		if err := ctx.Err(); err != nil {
			return p.report.CacheHits, "", err
		}
		payload, ok, err := p.req.Cache.Get(cache.Key(fp, []byte(rec.Text)))
		if err != nil {
			trace.Point(p.tracer, trace.ScopeSample, "cache:corrupt", err.Error(), parent, map[string]string{"stem": rec.Stem})
			continue
		}
		if !ok {
			continue
		}
		name := filepath.Base(rec.Path)
		switch payload.Status {
		case cache.StatusOK:
			asm := filepath.Join(p.req.AsmDir, rec.Stem+".s")
			if err := os.WriteFile(asm, []byte(payload.Assembly), 0o600); err != nil {
				return p.report.CacheHits, "", fmt.Errorf("failed to restore %s: %w", asm, err)
			}
		case cache.StatusCompileFailed:
			p.report.CompileFailed++
			p.report.Failures = append(p.report.Failures, cachedFailure(StageCompile, rec.Stem, rec.Path, payload))
		case cache.StatusDisassembleFailed:
			p.report.DisassembleFailed++
			p.report.Failures = append(p.report.Failures, cachedFailure(StageDisassemble, rec.Stem, rec.Path, payload))
		default:
			continue
		}
		p.cached[rec.Stem] = struct{}{}
		p.report.CacheHits++
		emit(p.req.Progress, Event{File: name, Stage: StageReplay, Status: StatusCached})
	}
	note := ""
	if p.report.CacheHits > 0 {
		note = fmt.Sprintf("%d of %d cached", p.report.CacheHits, len(p.records))
	}
	return p.report.CacheHits, note, nil
}

// Entries are keyed by content, so payload.Stem may name another sample with
// the same cleaned text.
func cachedFailure(stage Stage, stem, input string, payload *cache.Payload) TaskResult {
	return TaskResult{
		Stage:  stage,
		Stem:   stem,
		Input:  input,
		Status: StatusError,
		Err:    errors.New(payload.Message),
		Cached: true,
	}
}

// store records the outcome of every sample processed by tools in this run.
// Interrupted tasks are not stored.
func (p *run) store() {
	fp := p.fingerprint()
	for _, rec := range p.records {
		if _, ok := p.cached[rec.Stem]; ok {
			continue
		}
		payload := &cache.Payload{Stem: rec.Stem}
		if failed, ok := p.outcomes[rec.Stem]; ok {
			payload.Status = cache.StatusCompileFailed
			if failed.Stage == StageDisassemble {
				payload.Status = cache.StatusDisassembleFailed
			}
			payload.Message = failed.Err.Error()
		} else {
			// #nosec G304 -- path is built from the asm dir and a collected stem
			data, err := os.ReadFile(filepath.Join(p.req.AsmDir, rec.Stem+".s"))
			if err != nil {
				continue
			}
			lines, err := cache.CountLines(string(data))
			if err != nil {
				continue
			}
			payload.Status = cache.StatusOK
			payload.Assembly = string(data)
			payload.Lines = lines
		}
		if err := p.req.Cache.Put(cache.Key(fp, []byte(rec.Text)), payload); err != nil {
			trace.Point(p.tracer, trace.ScopeSample, "cache:store", err.Error(), 0, map[string]string{"stem": rec.Stem})
		}
	}
}
