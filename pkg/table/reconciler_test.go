package table

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler() (*Reconciler, *[]error) {
	r := NewReconciler(slog.Disabled)
	var reasons []error
	r.OnResync(func(reason error) { reasons = append(reasons, reason) })
	return r, &reasons
}

func TestReconciler_SnapshotThenDelta(t *testing.T) {
	// Snapshot at 10, delta 11 applies, delta 13 is rejected and requests a resync.
	r, reasons := newTestReconciler()

	require.NoError(t, r.ApplySnapshot(newTestState(10)))
	assert.Equal(t, uint64(10), r.Sequence())

	require.NoError(t, r.ApplyDelta(&Delta{
		Sequence:   11,
		Pot:        int64p(0),
		CurrentBet: int64p(20),
		SeatUpdates: []SeatDelta{
			{Position: 1, Stack: int64p(980), Bet: int64p(20), HasActed: boolp(true)},
		},
		CurrentActorID: strp("bob"),
		TotalWagered:   int64p(40),
	}))
	assert.Equal(t, uint64(11), r.Sequence())
	assert.Empty(t, *reasons)

	before := r.State()
	err := r.ApplyDelta(&Delta{Sequence: 13, Pot: int64p(40)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSequenceMismatch))
	var seqErr *SequenceError
	require.True(t, errors.As(err, &seqErr))
	assert.Equal(t, uint64(12), seqErr.Expected)
	assert.Equal(t, uint64(13), seqErr.Got)

	assert.Equal(t, before, r.State(), "rejected delta must not mutate state")
	assert.True(t, r.ResyncPending())
	require.Len(t, *reasons, 1)
	assert.True(t, errors.Is((*reasons)[0], ErrSequenceMismatch))
}

func TestReconciler_DuplicateAndOutOfOrder(t *testing.T) {
	tests := []struct {
		name string
		seq  uint64
	}{
		{"duplicate", 10},
		{"older", 7},
		{"gap", 12},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, reasons := newTestReconciler()
			require.NoError(t, r.ApplySnapshot(newTestState(10)))

			err := r.ApplyDelta(&Delta{Sequence: tc.seq})
			assert.ErrorIs(t, err, ErrSequenceMismatch)
			assert.Equal(t, uint64(10), r.Sequence())
			assert.Len(t, *reasons, 1)
		})
	}
}

func TestReconciler_DropsDeltasWhileResyncPending(t *testing.T) {
	r, reasons := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(newTestState(10)))

	require.ErrorIs(t, r.ApplyDelta(&Delta{Sequence: 12}), ErrSequenceMismatch)

	// Even a delta that would extend the old sequence is dropped now.
	assert.ErrorIs(t, r.ApplyDelta(&Delta{Sequence: 11}), ErrResyncPending)
	assert.Equal(t, uint64(10), r.Sequence())
	assert.Len(t, *reasons, 1, "a pending resync is requested only once")

	// Fresh snapshot clears the pending state.
	require.NoError(t, r.ApplySnapshot(newTestState(20)))
	assert.False(t, r.ResyncPending())
	require.NoError(t, r.ApplyDelta(&Delta{Sequence: 21}))
	assert.Equal(t, uint64(21), r.Sequence())
}

func TestReconciler_DeltaBeforeSnapshot(t *testing.T) {
	r, reasons := newTestReconciler()
	assert.ErrorIs(t, r.ApplyDelta(&Delta{Sequence: 1}), ErrNoState)
	assert.Nil(t, r.State())
	require.Len(t, *reasons, 1)
	assert.ErrorIs(t, (*reasons)[0], ErrNoState)
}

func TestReconciler_InvariantViolationDiscardsDelta(t *testing.T) {
	r, reasons := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(newTestState(10)))
	before := r.State()

	tests := []struct {
		name  string
		delta *Delta
	}{
		{"negative stack", &Delta{Sequence: 11, SeatUpdates: []SeatDelta{{Position: 1, Stack: int64p(-5)}}}},
		{"unknown seat", &Delta{Sequence: 11, SeatUpdates: []SeatDelta{{Position: 9, Stack: int64p(5)}}}},
		{"chips not conserved", &Delta{Sequence: 11, Pot: int64p(100)}},
		{"six community cards", &Delta{Sequence: 11, CommunityCards: &[]Card{
			NewCard(Spades, Two), NewCard(Spades, Three), NewCard(Spades, Four),
			NewCard(Spades, Five), NewCard(Spades, Six), NewCard(Spades, Seven),
		}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Re-arm: each case starts from the same snapshot.
			require.NoError(t, r.ApplySnapshot(before))
			err := r.ApplyDelta(tc.delta)
			assert.ErrorIs(t, err, ErrInvariant)
			assert.Equal(t, before, r.State())
			assert.True(t, r.ResyncPending())
		})
	}
	assert.Len(t, *reasons, len(tests))
}

func TestReconciler_StaleSnapshotIgnored(t *testing.T) {
	r, _ := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(newTestState(10)))
	assert.ErrorIs(t, r.ApplySnapshot(newTestState(9)), ErrStaleSnapshot)
	assert.Equal(t, uint64(10), r.Sequence())

	// Same sequence replaces.
	s := newTestState(10)
	s.HandID = "h2"
	require.NoError(t, r.ApplySnapshot(s))
	assert.Equal(t, "h2", r.State().HandID)
}

func TestReconciler_SnapshotHookClearsPending(t *testing.T) {
	r, _ := newTestReconciler()
	var applied []uint64
	var pendingInHook []bool
	r.OnSnapshotApplied(func(seq uint64) {
		applied = append(applied, seq)
		pendingInHook = append(pendingInHook, r.ResyncPending())
	})

	require.NoError(t, r.ApplySnapshot(newTestState(10)))
	require.Error(t, r.ApplyDelta(&Delta{Sequence: 12}))
	require.True(t, r.ResyncPending())

	require.NoError(t, r.ApplySnapshot(newTestState(13)))
	assert.ErrorIs(t, r.ApplySnapshot(newTestState(12)), ErrStaleSnapshot)

	assert.Equal(t, []uint64{10, 13}, applied, "rejected snapshots never fire the hook")
	assert.Equal(t, []bool{false, false}, pendingInHook)
	assert.False(t, r.ResyncPending())
}

func TestReconciler_InvalidSnapshotRejected(t *testing.T) {
	r, reasons := newTestReconciler()
	s := newTestState(10)
	s.Seats[1].Position = 3 // duplicate position

	assert.ErrorIs(t, r.ApplySnapshot(s), ErrInvariant)
	assert.Nil(t, r.State())
	assert.True(t, r.ResyncPending())
	assert.Len(t, *reasons, 1)
}

func TestReconciler_SubscribersSeeCompleteStates(t *testing.T) {
	r, _ := newTestReconciler()

	var seqs []uint64
	var prevNil []bool
	unsub := r.Subscribe(func(prev, next *TableState) {
		prevNil = append(prevNil, prev == nil)
		seqs = append(seqs, next.Sequence)
		require.NoError(t, next.Validate())
	})

	require.NoError(t, r.ApplySnapshot(newTestState(5)))
	require.NoError(t, r.ApplyDelta(&Delta{Sequence: 6, Street: func() *Street { s := StreetFlop; return &s }()}))
	_ = r.ApplyDelta(&Delta{Sequence: 9})

	unsub()
	require.NoError(t, r.ApplySnapshot(newTestState(30)))

	assert.Equal(t, []uint64{5, 6}, seqs)
	assert.Equal(t, []bool{true, false}, prevNil)
	assert.Equal(t, uint64(3), r.Version())
}

func TestReconciler_StateIsACopy(t *testing.T) {
	r, _ := newTestReconciler()
	require.NoError(t, r.ApplySnapshot(newTestState(1)))

	s := r.State()
	s.Seats[0].Stack = 0
	s.HoleCards[0] = NewCard(Clubs, Two)

	fresh := r.State()
	assert.Equal(t, int64(990), fresh.Seats[0].Stack)
	assert.Equal(t, NewCard(Spades, Ace), fresh.HoleCards[0])
}

// TestReconciler_SequenceMonotonic drives random snapshot/delta streams and
// checks that the sequence never decreases and that rejected deltas leave
// the state untouched.
func TestReconciler_SequenceMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		r, _ := newTestReconciler()
		require.NoError(t, r.ApplySnapshot(newTestState(uint64(rng.Intn(10)))))
		last := r.Sequence()

		for step := 0; step < 200; step++ {
			cur := r.Sequence()
			if rng.Intn(10) == 0 {
				_ = r.ApplySnapshot(newTestState(cur + uint64(rng.Intn(3))))
			} else {
				seq := cur + uint64(rng.Intn(3))
				if rng.Intn(4) == 0 && seq > 1 {
					seq -= 2
				}
				before := r.State()
				err := r.ApplyDelta(&Delta{Sequence: seq})
				if seq != cur+1 || errors.Is(err, ErrResyncPending) {
					require.Error(t, err)
					require.Equal(t, before, r.State())
				}
				if err == nil {
					require.Equal(t, cur+1, r.Sequence())
				}
			}
			require.GreaterOrEqual(t, r.Sequence(), last)
			last = r.Sequence()
		}
	}
}

func TestDelta_ClearsNullableFields(t *testing.T) {
	r, _ := newTestReconciler()
	s := newTestState(1)
	s.HandResult = &HandResult{Winners: []Winner{{PlayerID: "bob", Amount: 30}}}
	s.Voting = &Voting{Ready: []string{"bob"}}
	require.NoError(t, r.ApplySnapshot(s))

	empty := []Card{}
	require.NoError(t, r.ApplyDelta(&Delta{
		Sequence:        2,
		HandID:          strp(""),
		CurrentActorID:  strp(""),
		HoleCards:       &empty,
		ClearHandResult: true,
		ClearVoting:     true,
		Status:          statusp(StatusWaiting),
	}))

	got := r.State()
	assert.Empty(t, got.HandID)
	assert.Empty(t, got.CurrentActorID)
	assert.Nil(t, got.HoleCards)
	assert.Nil(t, got.HandResult)
	assert.Nil(t, got.Voting)
	assert.Equal(t, StatusWaiting, got.Status)
}

func TestDelta_SeatLifecycle(t *testing.T) {
	r, _ := newTestReconciler()
	s := newTestState(1)
	s.TotalWagered = 0
	require.NoError(t, r.ApplySnapshot(s))

	require.NoError(t, r.ApplyDelta(&Delta{
		Sequence:    2,
		SeatUpserts: []PlayerSeat{{Position: 2, UserID: "carol", DisplayName: "Carol", Stack: 500}},
	}))
	got := r.State()
	require.Len(t, got.Seats, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got.Seats[0].Position, got.Seats[1].Position, got.Seats[2].Position})

	require.NoError(t, r.ApplyDelta(&Delta{
		Sequence:     3,
		SeatsRemoved: []int{3},
		SeatUpdates:  []SeatDelta{{Position: 2, SittingOut: boolp(true)}},
	}))
	got = r.State()
	require.Len(t, got.Seats, 2)
	_, ok := got.SeatOf("bob")
	assert.False(t, ok)
	carol, ok := got.SeatOf("carol")
	require.True(t, ok)
	assert.True(t, carol.SittingOut)
}
