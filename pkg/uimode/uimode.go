// Package uimode derives the table display mode and layout hints from the
// normalized table state.
package uimode

import "github.com/vctt94/pokertablesync/pkg/table"

// Mode is a display mode of the table view.
type Mode string

const (
	Waiting        Mode = "WAITING"
	Showdown       Mode = "SHOWDOWN"
	PlayerAction   Mode = "PLAYER_ACTION"
	OpponentAction Mode = "OPPONENT_ACTION"
)

const (
	// FullHeroScale is the hero seat scale while the viewer acts.
	FullHeroScale = 1.0
	// ReducedHeroScale is the hero seat scale in every other mode.
	ReducedHeroScale = 0.85
)

// Inputs are the facts the mode is computed from.
type Inputs struct {
	IsMyTurn       bool
	IsShowdown     bool
	IsInterHand    bool
	IsTableWaiting bool
	IsSeated       bool
	CurrentActorID string
	HeroID         string
}

// Result is the derived mode and its layout hints.
type Result struct {
	Mode             Mode
	HeroSeatScale    float64
	ActionBarMinimal bool
	ShowWaitingToast bool
}

// Compute maps inputs to a mode in strict priority order. It has no side
// effects; equal inputs always give equal results.
func Compute(in Inputs) Result {
	var mode Mode
	switch {
	case in.IsTableWaiting || !in.IsSeated:
		mode = Waiting
	case in.IsShowdown || in.IsInterHand:
		mode = Showdown
	case in.IsMyTurn:
		mode = PlayerAction
	case in.CurrentActorID != "":
		mode = OpponentAction
	default:
		mode = Waiting
	}

	res := Result{
		Mode:             mode,
		HeroSeatScale:    ReducedHeroScale,
		ActionBarMinimal: mode != PlayerAction,
	}
	if mode == PlayerAction {
		res.HeroSeatScale = FullHeroScale
	}
	res.ShowWaitingToast = mode == OpponentAction &&
		!in.IsShowdown && !in.IsInterHand && in.IsSeated
	return res
}

// InputsFromState builds the inputs for viewerID from a normalized state.
// A nil state yields a waiting, unseated view.
func InputsFromState(state *table.TableState, viewerID string) Inputs {
	in := Inputs{
		HeroID:         viewerID,
		IsTableWaiting: state.IsWaiting(),
	}
	if state == nil {
		return in
	}
	seat, seated := state.SeatOf(viewerID)
	in.IsSeated = seated
	in.IsShowdown = state.IsShowdown()
	in.IsInterHand = state.IsInterHand()
	in.CurrentActorID = state.CurrentActorID
	in.IsMyTurn = seated && seat.InHand && state.CurrentActorID == viewerID
	return in
}
