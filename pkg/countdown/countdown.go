// Package countdown tracks turn and vote deadlines. Remaining time is always
// recomputed from the clock, never decremented, so a stalled ticker cannot
// make it drift or go negative.
package countdown

import (
	"context"
	"math"
	"sync"
	"time"
)

// TickInterval is how often Run reports progress.
const TickInterval = 250 * time.Millisecond

// Snapshot is the tracker reading at one instant.
type Snapshot struct {
	Remaining time.Duration
	Seconds   int
	Progress  float64
	Expired   bool
}

// Tracker follows a single deadline. It is safe for concurrent use and may
// be restarted with a new deadline at any time.
type Tracker struct {
	now func() time.Time

	mtx      sync.Mutex
	deadline time.Time
	total    time.Duration
	active   bool
	stopCh   chan struct{}
}

// New creates a tracker reading the given clock. A nil clock means
// time.Now.
func New(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now, stopCh: make(chan struct{})}
}

// Start resets the tracker to the given deadline. If total is not positive
// the distance from now to the deadline is used as the full duration.
func (t *Tracker) Start(deadline time.Time, total time.Duration) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if total <= 0 {
		total = deadline.Sub(t.now())
	}
	t.deadline = deadline
	t.total = total
	if !t.active {
		t.stopCh = make(chan struct{})
	}
	t.active = true
}

// StartISO starts from an RFC3339 deadline. When iso is empty or invalid
// the deadline falls back to now plus fallback.
func (t *Tracker) StartISO(iso string, fallback time.Duration) {
	deadline, err := time.Parse(time.RFC3339Nano, iso)
	if iso == "" || err != nil {
		deadline = t.now().Add(fallback)
	}
	t.Start(deadline, fallback)
}

// Stop deactivates the tracker and ends any Run loop.
func (t *Tracker) Stop() {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.active {
		t.active = false
		close(t.stopCh)
	}
}

// Active reports whether a deadline is being tracked.
func (t *Tracker) Active() bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.active
}

// Deadline returns the tracked deadline.
func (t *Tracker) Deadline() time.Time {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.deadline
}

// Remaining returns max(0, deadline-now). It is zero when stopped.
func (t *Tracker) Remaining() time.Duration {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.remaining()
}

func (t *Tracker) remaining() time.Duration {
	if !t.active {
		return 0
	}
	return max(t.deadline.Sub(t.now()), 0)
}

// Seconds returns the remaining whole seconds, rounded up.
func (t *Tracker) Seconds() int {
	return int(math.Ceil(t.Remaining().Seconds()))
}

// Progress returns remaining/total as a percentage in [0, 100].
func (t *Tracker) Progress() float64 {
	return t.Read().Progress
}

// Read returns a consistent reading of the tracker.
func (t *Tracker) Read() Snapshot {
	t.mtx.Lock()
	rem := t.remaining()
	total := t.total
	t.mtx.Unlock()

	var pct float64
	if total > 0 {
		pct = float64(rem) / float64(total) * 100
	}
	pct = math.Min(math.Max(pct, 0), 100)
	return Snapshot{
		Remaining: rem,
		Seconds:   int(math.Ceil(rem.Seconds())),
		Progress:  pct,
		Expired:   rem == 0,
	}
}

// Run calls onTick every TickInterval until ctx is done or the tracker is
// stopped. It returns immediately if the tracker is not active.
func (t *Tracker) Run(ctx context.Context, onTick func(Snapshot)) {
	t.mtx.Lock()
	if !t.active {
		t.mtx.Unlock()
		return
	}
	stopCh := t.stopCh
	t.mtx.Unlock()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	onTick(t.Read())
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			onTick(t.Read())
		}
	}
}
