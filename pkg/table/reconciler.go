package table

import (
	"errors"
	"fmt"
	"sync"

	"github.com/decred/slog"
)

var (
	// ErrNoState is returned when a delta arrives before any snapshot.
	ErrNoState = errors.New("no snapshot applied")
	// ErrSequenceMismatch is returned for gaps, duplicates and out-of-order deltas.
	ErrSequenceMismatch = errors.New("delta sequence mismatch")
	// ErrResyncPending is returned for deltas received while waiting for a snapshot.
	ErrResyncPending = errors.New("resync pending")
	// ErrStaleSnapshot is returned for a snapshot older than the current state.
	ErrStaleSnapshot = errors.New("stale snapshot")
	// ErrInvariant is returned when a message would produce an inconsistent state.
	ErrInvariant = errors.New("table state invariant violated")
)

// SequenceError describes a rejected delta.
type SequenceError struct {
	Expected uint64
	Got      uint64
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%v: expected %d, got %d", ErrSequenceMismatch, e.Expected, e.Got)
}

func (e *SequenceError) Unwrap() error { return ErrSequenceMismatch }

// ChangeFn is called after a new state is published. prev is nil for the
// first snapshot. Both values are read-only.
type ChangeFn func(prev, next *TableState)

// ResyncFn is called when the reconciler needs a fresh snapshot. reason is
// the error that caused the request.
type ResyncFn func(reason error)

// SnapshotFn is called after any snapshot is applied, whatever delivered
// it. A pending resync is cleared at that point.
type SnapshotFn func(seq uint64)

// Reconciler is the single writer of the normalized table state. Merges
// are built on a private copy and published with a pointer swap, so readers
// only ever see complete states.
type Reconciler struct {
	log slog.Logger

	// applyMtx serializes writers so that change observers see publishes in
	// order.
	applyMtx sync.Mutex

	mtx           sync.RWMutex
	state         *TableState
	version       uint64
	resyncPending bool

	hookMtx    sync.Mutex
	nextSub    uint
	subs       map[uint]ChangeFn
	onResync   ResyncFn
	onSnapshot SnapshotFn
}

// NewReconciler creates an empty reconciler.
func NewReconciler(log slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Disabled
	}
	return &Reconciler{
		log:  log,
		subs: make(map[uint]ChangeFn),
	}
}

// OnResync sets the hook invoked when a resync is needed.
func (r *Reconciler) OnResync(fn ResyncFn) {
	r.hookMtx.Lock()
	r.onResync = fn
	r.hookMtx.Unlock()
}

// OnSnapshotApplied sets the hook invoked after every applied snapshot. It
// runs after the change observers, before the next write is accepted.
func (r *Reconciler) OnSnapshotApplied(fn SnapshotFn) {
	r.hookMtx.Lock()
	r.onSnapshot = fn
	r.hookMtx.Unlock()
}

// Subscribe registers a change observer. Observers must not call
// ApplySnapshot or ApplyDelta.
func (r *Reconciler) Subscribe(fn ChangeFn) (unsubscribe func()) {
	r.hookMtx.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.hookMtx.Unlock()

	return func() {
		r.hookMtx.Lock()
		delete(r.subs, id)
		r.hookMtx.Unlock()
	}
}

// State returns a copy of the current state, or nil before the first
// snapshot.
func (r *Reconciler) State() *TableState {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.state.Clone()
}

// Sequence returns the sequence of the current state.
func (r *Reconciler) Sequence() uint64 {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if r.state == nil {
		return 0
	}
	return r.state.Sequence
}

// Version increments on every publish.
func (r *Reconciler) Version() uint64 {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.version
}

// ResyncPending reports whether deltas are being dropped until the next
// snapshot.
func (r *Reconciler) ResyncPending() bool {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.resyncPending
}

// MarkResyncPending makes the reconciler drop deltas until the next
// snapshot. Used when the resync is initiated outside the reconciler, for
// example after a reconnect.
func (r *Reconciler) MarkResyncPending() {
	r.mtx.Lock()
	r.resyncPending = true
	r.mtx.Unlock()
}

// Reset forgets the current state.
func (r *Reconciler) Reset() {
	r.applyMtx.Lock()
	defer r.applyMtx.Unlock()

	r.mtx.Lock()
	r.state = nil
	r.resyncPending = false
	r.version++
	r.mtx.Unlock()
}

// ApplySnapshot replaces the model with the snapshot and resets the
// sequence to the snapshot's. A snapshot older than the current state is
// rejected with ErrStaleSnapshot.
func (r *Reconciler) ApplySnapshot(snap *TableState) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvariant)
	}

	next := snap.Clone()
	next.normalize()
	if err := next.Validate(); err != nil {
		r.log.Warnf("Rejecting snapshot seq=%d: %v", snap.Sequence, err)
		r.MarkResyncPending()
		r.requestResync(err)
		return err
	}

	r.applyMtx.Lock()
	defer r.applyMtx.Unlock()

	r.mtx.Lock()
	prev := r.state
	if prev != nil && next.Sequence < prev.Sequence {
		r.mtx.Unlock()
		r.log.Debugf("Ignoring stale snapshot seq=%d (current %d)", next.Sequence, prev.Sequence)
		return fmt.Errorf("%w: seq %d < %d", ErrStaleSnapshot, next.Sequence, prev.Sequence)
	}
	r.state = next
	r.resyncPending = false
	r.version++
	r.mtx.Unlock()

	r.log.Debugf("Applied snapshot for table %s at seq %d", next.TableID, next.Sequence)
	r.publish(prev, next)

	r.hookMtx.Lock()
	onSnapshot := r.onSnapshot
	r.hookMtx.Unlock()
	if onSnapshot != nil {
		onSnapshot(next.Sequence)
	}
	return nil
}

// ApplyDelta merges the delta when its sequence is exactly current+1. Any
// other sequence is rejected without touching the state and triggers a
// resync. Deltas are dropped while a resync is pending.
func (r *Reconciler) ApplyDelta(d *Delta) error {
	if d == nil {
		return fmt.Errorf("%w: nil delta", ErrInvariant)
	}

	r.applyMtx.Lock()
	defer r.applyMtx.Unlock()

	r.mtx.Lock()
	prev := r.state
	switch {
	case r.resyncPending:
		r.mtx.Unlock()
		r.log.Tracef("Dropping delta seq=%d while resync is pending", d.Sequence)
		return ErrResyncPending

	case prev == nil:
		r.resyncPending = true
		r.mtx.Unlock()
		r.requestResync(ErrNoState)
		return ErrNoState

	case d.Sequence != prev.Sequence+1:
		r.resyncPending = true
		r.mtx.Unlock()
		err := &SequenceError{Expected: prev.Sequence + 1, Got: d.Sequence}
		r.log.Warnf("Sequence gap on table %s: %v", prev.TableID, err)
		r.requestResync(err)
		return err
	}

	next := prev.Clone()
	err := d.applyTo(next)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		r.resyncPending = true
		r.mtx.Unlock()
		r.log.Warnf("Discarding delta seq=%d: %v", d.Sequence, err)
		r.requestResync(err)
		return err
	}

	r.state = next
	r.version++
	r.mtx.Unlock()

	r.publish(prev, next)
	return nil
}

func (r *Reconciler) requestResync(reason error) {
	r.hookMtx.Lock()
	fn := r.onResync
	r.hookMtx.Unlock()
	if fn != nil {
		fn(reason)
	}
}

func (r *Reconciler) publish(prev, next *TableState) {
	r.hookMtx.Lock()
	subs := make([]ChangeFn, 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.hookMtx.Unlock()

	for _, fn := range subs {
		fn(prev, next)
	}
}
