package table

func int64p(v int64) *int64    { return &v }
func strp(v string) *string    { return &v }
func boolp(v bool) *bool       { return &v }
func statusp(v Status) *Status { return &v }

// newTestState returns a valid two-seat state mid-hand.
func newTestState(seq uint64) *TableState {
	return &TableState{
		TableID:        "t1",
		HandID:         "h1",
		Status:         StatusPlaying,
		Street:         StreetPreflop,
		Pot:            0,
		CurrentBet:     20,
		MinRaise:       20,
		BigBlind:       20,
		CurrentActorID: "alice",
		Sequence:       seq,
		Seats: []PlayerSeat{
			{Position: 3, UserID: "bob", DisplayName: "Bob", Stack: 980, Bet: 20, InHand: true, IsBigBlind: true},
			{Position: 1, UserID: "alice", DisplayName: "Alice", Stack: 990, Bet: 10, InHand: true, IsSmallBlind: true, IsButton: true},
		},
		HoleCards:    []Card{NewCard(Spades, Ace), NewCard(Hearts, King)},
		TotalWagered: 30,
	}
}
