package animation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vctt94/pokertablesync/pkg/table"
)

func baseState() *table.TableState {
	return &table.TableState{
		TableID:    "t1",
		HandID:     "h1",
		Status:     table.StatusPlaying,
		Street:     table.StreetPreflop,
		CurrentBet: 20,
		Sequence:   4,
		Seats: []table.PlayerSeat{
			{Position: 1, UserID: "alice", Stack: 990, Bet: 10, InHand: true},
			{Position: 3, UserID: "bob", Stack: 980, Bet: 20, InHand: true},
		},
		HoleCards: []table.Card{table.NewCard(table.Spades, table.Ace), table.NewCard(table.Hearts, table.King)},
	}
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func TestDerive_FirstStateHasNoAnimations(t *testing.T) {
	assert.Empty(t, Derive(nil, baseState()))
}

func TestDerive_BetMovement(t *testing.T) {
	prev := baseState()
	next := prev.Clone()
	next.Sequence = 5
	next.Seats[0].Bet = 60
	next.Seats[0].Stack = 940
	next.LastAction = &table.LastAction{PlayerID: "alice", Action: table.ActionRaise, Amount: 60, Timestamp: 1700000000123}

	events := Derive(prev, next)
	require.Len(t, events, 1)
	assert.Equal(t, "bet_movement-seat1-1700000000123", events[0].ID)
	assert.Equal(t, int64(50), events[0].Amount)
	assert.Equal(t, Durations[BetMovement], events[0].Duration)

	// Re-deriving the same transition yields the same IDs.
	assert.Equal(t, ids(events), ids(Derive(prev, next)))
}

func TestDerive_StreetChange(t *testing.T) {
	prev := baseState()
	prev.Seats[0].Bet = 20
	prev.Pot = 0

	next := prev.Clone()
	next.Sequence = 5
	next.Street = table.StreetFlop
	next.CurrentBet = 0
	next.Seats[0].Bet = 0
	next.Seats[1].Bet = 0
	next.Pot = 40
	next.CommunityCards = []table.Card{
		table.NewCard(table.Clubs, table.Two),
		table.NewCard(table.Clubs, table.Three),
		table.NewCard(table.Clubs, table.Four),
	}

	assert.Equal(t, []string{
		"pot_collection-pot-s5",
		"card_slide-board0-h1",
		"card_slide-board1-h1",
		"card_slide-board2-h1",
	}, ids(Derive(prev, next)))
}

func TestDerive_NewHandDealsHoleCards(t *testing.T) {
	prev := baseState()
	prev.HoleCards = nil
	prev.HandID = ""
	prev.Seats[0].Bet, prev.Seats[1].Bet = 0, 0

	next := baseState()
	next.HandID = "h2"
	next.Sequence = 9

	got := ids(Derive(prev, next))
	assert.Contains(t, got, "card_slide-hole0-h2")
	assert.Contains(t, got, "card_slide-hole1-h2")
	assert.Contains(t, got, "bet_movement-seat1-s9")
	assert.Contains(t, got, "bet_movement-seat3-s9")
}

func TestDerive_Showdown(t *testing.T) {
	prev := baseState()
	next := prev.Clone()
	next.Sequence = 5
	next.Status = table.StatusShowdown
	next.HandResult = &table.HandResult{
		Winners:  []table.Winner{{PlayerID: "bob", Amount: 30}},
		Revealed: []table.RevealedHand{{PlayerID: "bob"}, {PlayerID: "alice"}},
	}

	assert.Equal(t, []string{
		"card_flip-seat3-h1",
		"card_flip-seat1-h1",
		"win_highlight-seat3-h1",
	}, ids(Derive(prev, next)))

	// Same result again: nothing new.
	again := next.Clone()
	again.Sequence = 6
	assert.Empty(t, Derive(next, again))
}

func TestNewTimeoutPulse(t *testing.T) {
	deadline := time.UnixMilli(1700000000000)
	ev := NewTimeoutPulse(3, deadline)
	assert.Equal(t, "timeout_pulse-seat3-1700000000000", ev.ID)
	assert.Equal(t, TimeoutPulse, ev.Type)
	assert.Equal(t, "seat3", ev.Target)
}
