package actions

import (
	"github.com/vctt94/pokertablesync/pkg/table"
)

// AllowedActionSet is the legal action set of the viewer, derived fresh
// from a table state. It is never mutated after Derive returns.
type AllowedActionSet struct {
	PlayerID string
	IsMyTurn bool
	Actions  []table.ActionType

	Stack        int64
	Bet          int64
	AmountToCall int64
	// CallAmount is what a call actually puts in: AmountToCall capped by
	// the stack.
	CallAmount int64

	// Bounds of bet/raise, expressed as the total bet for the street.
	MinRaiseTo int64
	MaxRaiseTo int64

	// ServerDeclared is set when the actions and bounds came from the
	// server rather than the local fallback.
	ServerDeclared bool
}

// Has reports whether the action is currently legal.
func (s *AllowedActionSet) Has(a table.ActionType) bool {
	if s == nil {
		return false
	}
	for _, act := range s.Actions {
		if act == a {
			return true
		}
	}
	return false
}

// ValidateAmount checks a proposed bet/raise-to amount against the set's
// bounds.
func (s *AllowedActionSet) ValidateAmount(amount int64) error {
	return ValidateAmount(s.MinRaiseTo, s.MaxRaiseTo, amount)
}

// ValidateAmount accepts amount iff minRaiseTo <= amount <= maxRaiseTo.
func ValidateAmount(minRaiseTo, maxRaiseTo, amount int64) error {
	if amount < minRaiseTo {
		return validationErr(ReasonBelowMinimum, "%d < %d", amount, minRaiseTo)
	}
	if amount > maxRaiseTo {
		return validationErr(ReasonAboveMaximum, "%d > %d", amount, maxRaiseTo)
	}
	return nil
}

// Derive computes the viewer's legal action set from the state. It fails
// with ReasonNoGameState when there is no state and ReasonPlayerNotFound
// when the viewer holds no seat.
func Derive(state *table.TableState, viewerID string) (*AllowedActionSet, error) {
	if state == nil {
		return nil, validationErr(ReasonNoGameState, "no table state")
	}
	seat, ok := state.SeatOf(viewerID)
	if !ok {
		return nil, validationErr(ReasonPlayerNotFound, "viewer %q has no seat at %s", viewerID, state.TableID)
	}

	set := &AllowedActionSet{
		PlayerID:     viewerID,
		Stack:        seat.Stack,
		Bet:          seat.Bet,
		AmountToCall: max(state.CurrentBet-seat.Bet, 0),
		MaxRaiseTo:   seat.Stack + seat.Bet,
	}
	set.CallAmount = min(set.AmountToCall, seat.Stack)

	if state.IsInterHand() {
		if state.Voting != nil && !state.Voting.HasVoted(viewerID) {
			set.Actions = []table.ActionType{table.ActionReady}
		}
		return set, nil
	}

	set.IsMyTurn = state.Status == table.StatusPlaying &&
		!state.IsShowdown() &&
		state.CurrentActorID == viewerID &&
		seat.InHand
	if !set.IsMyTurn {
		return set, nil
	}

	if sa := state.AllowedActions; sa != nil && (sa.PlayerID == "" || sa.PlayerID == viewerID) {
		set.ServerDeclared = true
		set.Actions = append([]table.ActionType(nil), sa.Actions...)
		if sa.MaxAmount > 0 {
			set.MaxRaiseTo = sa.MaxAmount
		}
		set.MinRaiseTo = min(fallbackMinRaiseTo(state), set.MaxRaiseTo)
		if sa.MinAmount > 0 {
			set.MinRaiseTo = sa.MinAmount
		}
		return set, nil
	}

	set.Actions = fallbackActions(state, set)
	set.MinRaiseTo = min(fallbackMinRaiseTo(state), set.MaxRaiseTo)
	return set, nil
}

// fallbackActions is the conservative action set used when the server does
// not declare one.
func fallbackActions(state *table.TableState, set *AllowedActionSet) []table.ActionType {
	acts := []table.ActionType{table.ActionFold}
	if set.AmountToCall == 0 {
		acts = append(acts, table.ActionCheck)
	} else if set.Stack > 0 {
		acts = append(acts, table.ActionCall)
	}
	if state.CurrentBet == 0 && set.Stack > 0 {
		acts = append(acts, table.ActionBet)
	}
	if state.CurrentBet > 0 && set.Stack > set.AmountToCall {
		acts = append(acts, table.ActionRaise)
	}
	if set.Stack > 0 {
		acts = append(acts, table.ActionAllIn)
	}
	return acts
}

func fallbackMinRaiseTo(state *table.TableState) int64 {
	increment := max(state.MinRaise, state.BigBlind, 1)
	return state.CurrentBet + increment
}
