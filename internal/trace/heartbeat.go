package trace

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Heartbeat periodically emits heartbeat events. Heartbeats without matching
// span ends usually mean a compiler or disassembler invocation has hung.
type Heartbeat struct {
	tracer   Tracer
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// StartHeartbeat creates and starts a new heartbeat goroutine.
func StartHeartbeat(tracer Tracer, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}

	h := &Heartbeat{
		tracer:   tracer,
		interval: interval,
		stopCh:   make(chan struct{}),
	}

	h.wg.Add(1)
	go h.run()

	return h
}

func (h *Heartbeat) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	seq := uint64(0)
	for {
		select {
		case now := <-ticker.C:
			seq++
			detail, extra := h.describe(seq, now)
			h.tracer.Emit(&Event{
				Time:   now,
				Kind:   KindHeartbeat,
				Scope:  ScopeDriver,
				GID:    getGoroutineID(),
				Name:   "heartbeat",
				Detail: detail,
				Extra:  extra,
			})
		case <-h.stopCh:
			return
		}
	}
}

// describe names the finest, longest-running open span when the tracer
// tracks them.
func (h *Heartbeat) describe(seq uint64, now time.Time) (string, map[string]string) {
	detail := fmt.Sprintf("#%d", seq)
	in, ok := h.tracer.(*Inflight)
	if !ok {
		return detail, nil
	}
	open := in.Open(now)
	extra := map[string]string{"open": strconv.Itoa(len(open))}
	if len(open) == 0 {
		return detail, extra
	}
	top := open[0]
	what := top.Name
	if top.Detail != "" {
		what += " " + top.Detail
	}
	extra["running"] = what
	extra["age"] = top.Age.Round(time.Millisecond).String()
	return detail + " " + what + " for " + extra["age"], extra
}

// Stop stops the heartbeat goroutine and waits for it to finish.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		close(h.stopCh)
		h.wg.Wait()
	})
}
