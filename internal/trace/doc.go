// Package trace provides the logging and tracing subsystem for asmcorpus.
//
// Pipeline runs emit spans for the run itself and for every stage, plus point
// events for individual samples (tool failures, cache replays, dropped
// entries). Events go to a stream (file or stderr), a ring buffer kept for
// post-mortem dumps, or both.
//
// Every compiler and objdump call gets a tool span named after the binary and
// carrying the sample stem. With --trace-heartbeat set, the tracer is wrapped
// in an Inflight tracker and each heartbeat names the longest-running open
// invocation, so a hung gcc shows up as "heartbeat (#12 gcc f_123 for 41s)".
//
// # Usage
//
//	asmcorpus preprocess --trace=- --trace-level=detail
//
// # Levels
//
//   - LevelOff: No tracing
//   - LevelError: Only failures
//   - LevelPhase: Run and stage boundaries
//   - LevelDetail: Per-sample failures and drops
//   - LevelDebug: Everything, including tool invocations
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeStage, "compile", parentID)
//	defer span.End("")
package trace
