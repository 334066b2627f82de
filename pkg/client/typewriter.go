package client

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBatchSize is how many reveal units appear per frame.
	DefaultBatchSize = 5

	// DefaultFrameInterval is the floor between frames, targeting a
	// high-refresh display.
	DefaultFrameInterval = 7 * time.Millisecond
)

// TypewriterConfig tunes reveal pacing. Zero values take the defaults.
type TypewriterConfig struct {
	BatchSize     int
	FrameInterval time.Duration
}

// Typewriter progressively reveals text at a bounded frame rate, independent
// of how fast the source text arrived. The source may be a complete string
// (Reveal) or a live-updating accumulated snapshot (Update then Finish).
//
// The frame callback always receives the cumulative revealed-so-far string
// and is never called with a shorter value than a previous call. At most one
// frame timer is pending at any moment.
type Typewriter struct {
	batch   int
	frame   time.Duration
	onFrame func(revealed string)

	mu         sync.Mutex
	units      []string
	next       int
	revealed   strings.Builder
	pending    *time.Timer
	lastFrame  time.Time
	sourceDone bool
	completed  bool
	canceled   bool
	finished   chan struct{}

	// cbMu serializes frame callbacks; delivered enforces that a shorter
	// snapshot is never handed out after a longer one.
	cbMu      sync.Mutex
	delivered int
}

// NewTypewriter creates a typewriter calling onFrame once per reveal frame.
func NewTypewriter(cfg TypewriterConfig, onFrame func(revealed string)) *Typewriter {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	frame := cfg.FrameInterval
	if frame <= 0 {
		frame = DefaultFrameInterval
	}

	return &Typewriter{
		batch:    batch,
		frame:    frame,
		onFrame:  onFrame,
		finished: make(chan struct{}),
	}
}

// Update feeds a newer accumulated snapshot of the source text. Snapshots
// must be prefix-extensions of earlier ones, which is what the stream
// consumer's authoritative accumulated value guarantees.
func (t *Typewriter) Update(accumulated string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.canceled || t.completed {
		return
	}

	units := SplitUnits(accumulated)
	if len(units) >= len(t.units) {
		t.units = units
	}

	t.schedule()
}

// Finish marks the source complete; the remaining units drain at the
// configured pace and the final frame carries the full text.
func (t *Typewriter) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.canceled || t.completed {
		return
	}

	t.sourceDone = true
	t.schedule()
}

// Reveal runs a complete text through the typewriter and blocks until the
// reveal finishes or the context is done.
func (t *Typewriter) Reveal(ctx context.Context, text string) error {
	t.Update(text)
	t.Finish()

	select {
	case <-t.finished:
		return nil
	case <-ctx.Done():
		t.Cancel()
		return ctx.Err()
	}
}

// Done reports reveal completion.
func (t *Typewriter) Done() <-chan struct{} {
	return t.finished
}

// Cancel stops the reveal; any pending frame is dropped before a new
// typewriter takes over the display.
func (t *Typewriter) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.canceled = true
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// schedule arms the single frame timer, honoring the frame-rate floor.
// Callers hold t.mu.
func (t *Typewriter) schedule() {
	if t.pending != nil || t.canceled || t.completed {
		return
	}

	if !t.hasWork() {
		return
	}

	delay := t.frame - time.Since(t.lastFrame)
	if delay < 0 {
		delay = 0
	}

	t.pending = time.AfterFunc(delay, t.step)
}

// hasWork reports whether a frame would reveal anything or conclude the
// reveal. While the source is live, the trailing unit is held back because
// it may still be extended by the next snapshot. Callers hold t.mu.
func (t *Typewriter) hasWork() bool {
	if t.sourceDone {
		return true
	}
	return t.next < len(t.units)-1
}

// step is one frame: reveal up to a batch of units, call back with the
// cumulative text, and re-arm if more remains.
func (t *Typewriter) step() {
	t.mu.Lock()

	t.pending = nil
	if t.canceled || t.completed {
		t.mu.Unlock()
		return
	}

	limit := len(t.units)
	if !t.sourceDone && limit > 0 {
		limit--
	}

	for n := 0; t.next < limit && n < t.batch; n++ {
		t.revealed.WriteString(t.units[t.next])
		t.next++
	}

	t.lastFrame = time.Now()
	out := t.revealed.String()

	complete := t.sourceDone && t.next == len(t.units)
	if complete {
		t.completed = true
	} else {
		t.schedule()
	}

	t.mu.Unlock()

	if t.onFrame != nil {
		t.cbMu.Lock()
		if len(out) >= t.delivered {
			t.delivered = len(out)
			t.onFrame(out)
		}
		t.cbMu.Unlock()
	}

	if complete {
		close(t.finished)
	}
}
