package actions

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vctt94/pokertablesync/pkg/table"
)

// facingBet returns a state where alice (to act) faces a bet of 30 with 10
// already in and 490 behind.
func facingBet() *table.TableState {
	return &table.TableState{
		TableID:        "t1",
		HandID:         "h1",
		Status:         table.StatusPlaying,
		Street:         table.StreetPreflop,
		CurrentBet:     30,
		MinRaise:       20,
		BigBlind:       20,
		CurrentActorID: "alice",
		Sequence:       7,
		Seats: []table.PlayerSeat{
			{Position: 1, UserID: "alice", Stack: 490, Bet: 10, InHand: true},
			{Position: 2, UserID: "bob", Stack: 470, Bet: 30, InHand: true},
		},
	}
}

func TestDerive_BetBounds(t *testing.T) {
	// minRaiseTo = 30+20, maxRaiseTo = 490+10.
	set, err := Derive(facingBet(), "alice")
	require.NoError(t, err)
	assert.True(t, set.IsMyTurn)
	assert.False(t, set.ServerDeclared)
	assert.Equal(t, int64(20), set.AmountToCall)
	assert.Equal(t, int64(50), set.MinRaiseTo)
	assert.Equal(t, int64(500), set.MaxRaiseTo)

	tests := []struct {
		amount int64
		want   error
	}{
		{700, ErrAboveMaximum},
		{20, ErrBelowMinimum},
		{200, nil},
		{50, nil},
		{500, nil},
	}
	for _, tc := range tests {
		err := set.ValidateAmount(tc.amount)
		if tc.want == nil {
			assert.NoError(t, err, "amount %d", tc.amount)
			continue
		}
		assert.ErrorIs(t, err, tc.want, "amount %d", tc.amount)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
	}
}

func TestDerive_FallbackActions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*table.TableState)
		want   []table.ActionType
	}{{
		name: "facing bet",
		want: []table.ActionType{table.ActionFold, table.ActionCall, table.ActionRaise, table.ActionAllIn},
	}, {
		name: "unopened street",
		mutate: func(s *table.TableState) {
			s.CurrentBet = 0
			s.Seats[0].Bet = 0
			s.Seats[1].Bet = 0
		},
		want: []table.ActionType{table.ActionFold, table.ActionCheck, table.ActionBet, table.ActionAllIn},
	}, {
		name: "short stack",
		mutate: func(s *table.TableState) {
			s.Seats[0].Stack = 15
		},
		want: []table.ActionType{table.ActionFold, table.ActionCall, table.ActionAllIn},
	}, {
		name: "bet matched",
		mutate: func(s *table.TableState) {
			s.Seats[0].Bet = 30
		},
		want: []table.ActionType{table.ActionFold, table.ActionCheck, table.ActionRaise, table.ActionAllIn},
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := facingBet()
			if tc.mutate != nil {
				tc.mutate(s)
			}
			set, err := Derive(s, "alice")
			require.NoError(t, err)
			assert.Equal(t, tc.want, set.Actions)
		})
	}
}

func TestDerive_MinRaiseClampedToStack(t *testing.T) {
	s := facingBet()
	s.Seats[0].Stack = 25 // can only go to 35
	set, err := Derive(s, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(35), set.MaxRaiseTo)
	assert.Equal(t, int64(35), set.MinRaiseTo)
	assert.Equal(t, int64(20), set.CallAmount)
}

func TestDerive_NotMyTurn(t *testing.T) {
	set, err := Derive(facingBet(), "bob")
	require.NoError(t, err)
	assert.False(t, set.IsMyTurn)
	assert.Empty(t, set.Actions)
	assert.False(t, set.Has(table.ActionFold))
}

func TestDerive_ServerDeclaredWins(t *testing.T) {
	s := facingBet()
	s.AllowedActions = &table.ServerAllowedActions{
		PlayerID:  "alice",
		Actions:   []table.ActionType{table.ActionFold, table.ActionCall},
		MinAmount: 60,
		MaxAmount: 400,
	}
	set, err := Derive(s, "alice")
	require.NoError(t, err)
	assert.True(t, set.ServerDeclared)
	assert.Equal(t, []table.ActionType{table.ActionFold, table.ActionCall}, set.Actions)
	assert.Equal(t, int64(60), set.MinRaiseTo)
	assert.Equal(t, int64(400), set.MaxRaiseTo)

	// Declared for someone else: ignored.
	s.AllowedActions.PlayerID = "bob"
	set, err = Derive(s, "alice")
	require.NoError(t, err)
	assert.False(t, set.ServerDeclared)
	assert.True(t, set.Has(table.ActionRaise))
}

func TestDerive_InterHandReady(t *testing.T) {
	s := facingBet()
	s.Status = table.StatusInterHand
	s.Voting = &table.Voting{Ready: []string{"bob"}}

	set, err := Derive(s, "alice")
	require.NoError(t, err)
	assert.Equal(t, []table.ActionType{table.ActionReady}, set.Actions)

	set, err = Derive(s, "bob")
	require.NoError(t, err)
	assert.Empty(t, set.Actions)
}

func TestDerive_Errors(t *testing.T) {
	_, err := Derive(nil, "alice")
	assert.ErrorIs(t, err, ErrNoGameState)

	_, err = Derive(facingBet(), "mallory")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ReasonPlayerNotFound, verr.Reason)
}

// TestValidateAmount_Clamping checks that an amount is accepted exactly when
// it lies within the bounds.
func TestValidateAmount_Clamping(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		lo := rng.Int63n(1000)
		hi := lo + rng.Int63n(1000)
		amount := rng.Int63n(2200) - 100

		err := ValidateAmount(lo, hi, amount)
		switch {
		case amount < lo:
			require.ErrorIs(t, err, ErrBelowMinimum)
		case amount > hi:
			require.ErrorIs(t, err, ErrAboveMaximum)
		default:
			require.NoError(t, err)
		}
	}
}
