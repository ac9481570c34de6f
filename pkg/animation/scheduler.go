package animation

import (
	"sort"
	"sync"
	"time"

	"github.com/decred/slog"
)

// Timer is a stoppable one-shot timer.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Effect is the visual side effect attached to an event. Either func may
// be nil.
type Effect struct {
	Apply  func()
	Revert func()
}

func (e Effect) apply() {
	if e.Apply != nil {
		e.Apply()
	}
}

func (e Effect) revert() {
	if e.Revert != nil {
		e.Revert()
	}
}

// DoneFn is called exactly once when a started event completes or is
// canceled. It is not called for an event replaced by a later Start with
// the same ID.
type DoneFn func(ev Event, canceled bool)

type entry struct {
	ev     Event
	effect Effect
	done   DoneFn
	timer  Timer
	gen    uint64
}

// Scheduler runs at most one event per ID.
type Scheduler struct {
	log       slog.Logger
	afterFunc AfterFunc

	mtx     sync.Mutex
	gen     uint64
	entries map[string]*entry
}

// NewScheduler creates a scheduler. A nil afterFunc uses time.AfterFunc.
func NewScheduler(log slog.Logger, afterFunc AfterFunc) *Scheduler {
	if log == nil {
		log = slog.Disabled
	}
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Scheduler{
		log:       log,
		afterFunc: afterFunc,
		entries:   make(map[string]*entry),
	}
}

// Start registers the event, applies its effect and arranges completion
// after ev.Duration. An event already running under the same ID is
// stopped and its effect reverted first.
func (s *Scheduler) Start(ev Event, effect Effect, done DoneFn) {
	s.mtx.Lock()
	old := s.entries[ev.ID]
	if old != nil {
		old.timer.Stop()
	}
	s.gen++
	e := &entry{ev: ev, effect: effect, done: done, gen: s.gen}
	s.entries[ev.ID] = e
	gen := e.gen
	e.timer = s.afterFunc(ev.Duration, func() { s.finish(ev.ID, gen, false) })
	s.mtx.Unlock()

	if old != nil {
		s.log.Tracef("Replacing animation %s", ev.ID)
		old.effect.revert()
	}
	effect.apply()
}

// Cancel stops the event, reverts its effect and reports it canceled.
// Unknown IDs are ignored.
func (s *Scheduler) Cancel(id string) {
	s.mtx.Lock()
	e := s.entries[id]
	var gen uint64
	if e != nil {
		gen = e.gen
	}
	s.mtx.Unlock()
	if e != nil {
		s.finish(id, gen, true)
	}
}

// CancelAll cancels every running event in ID order.
func (s *Scheduler) CancelAll() {
	s.mtx.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		e.timer.Stop()
		entries = append(entries, e)
	}
	s.entries = make(map[string]*entry)
	s.mtx.Unlock()

	if len(entries) == 0 {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ev.ID < entries[j].ev.ID })
	s.log.Debugf("Canceling %d animations", len(entries))
	for _, e := range entries {
		e.effect.revert()
		if e.done != nil {
			e.done(e.ev, true)
		}
	}
}

// Active reports whether an event with the ID is running.
func (s *Scheduler) Active(id string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of running events.
func (s *Scheduler) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.entries)
}

// finish removes the entry if it is still generation gen and reports it.
// Timers that lose the race with a replacement or cancel see a different
// generation and do nothing.
func (s *Scheduler) finish(id string, gen uint64, canceled bool) {
	s.mtx.Lock()
	e := s.entries[id]
	if e == nil || e.gen != gen {
		s.mtx.Unlock()
		return
	}
	delete(s.entries, id)
	if canceled {
		e.timer.Stop()
	}
	s.mtx.Unlock()

	if canceled {
		e.effect.revert()
	}
	if e.done != nil {
		e.done(e.ev, canceled)
	}
}
