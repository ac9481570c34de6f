package table

import "fmt"

// SeatDelta is a partial update of one seat, addressed by position.
type SeatDelta struct {
	Position     int     `json:"position"`
	DisplayName  *string `json:"display_name,omitempty"`
	Stack        *int64  `json:"stack,omitempty"`
	Bet          *int64  `json:"bet,omitempty"`
	InHand       *bool   `json:"in_hand,omitempty"`
	IsButton     *bool   `json:"is_button,omitempty"`
	IsSmallBlind *bool   `json:"is_small_blind,omitempty"`
	IsBigBlind   *bool   `json:"is_big_blind,omitempty"`
	HasActed     *bool   `json:"has_acted,omitempty"`
	SittingOut   *bool   `json:"sitting_out,omitempty"`
}

// Delta is an incremental update. Absent fields are left untouched.
// Nullable fields are cleared with an explicit empty value: an empty
// hand_id or current_actor_id, an empty hole_cards list, or one of the
// Clear* flags.
type Delta struct {
	Sequence uint64 `json:"sequence"`

	Status              *Status               `json:"status,omitempty"`
	Street              *Street               `json:"street,omitempty"`
	HandID              *string               `json:"hand_id,omitempty"`
	CommunityCards      *[]Card               `json:"community_cards,omitempty"`
	Pot                 *int64                `json:"pot,omitempty"`
	Pots                *[]Pot                `json:"pots,omitempty"`
	CurrentBet          *int64                `json:"current_bet,omitempty"`
	MinRaise            *int64                `json:"min_raise,omitempty"`
	BigBlind            *int64                `json:"big_blind,omitempty"`
	CurrentActorID      *string               `json:"current_actor_id,omitempty"`
	TurnDeadline        *string               `json:"turn_deadline,omitempty"`
	TurnDurationSeconds *int                  `json:"turn_duration_seconds,omitempty"`
	HoleCards           *[]Card               `json:"hole_cards,omitempty"`
	LastAction          *LastAction           `json:"last_action,omitempty"`
	HandResult          *HandResult           `json:"hand_result,omitempty"`
	ClearHandResult     bool                  `json:"clear_hand_result,omitempty"`
	Voting              *Voting               `json:"voting,omitempty"`
	ClearVoting         bool                  `json:"clear_voting,omitempty"`
	AllowedActions      *ServerAllowedActions `json:"allowed_actions,omitempty"`
	ClearAllowedActions bool                  `json:"clear_allowed_actions,omitempty"`
	TotalWagered        *int64                `json:"total_wagered,omitempty"`

	SeatUpserts  []PlayerSeat `json:"seat_upserts,omitempty"`
	SeatUpdates  []SeatDelta  `json:"seat_updates,omitempty"`
	SeatsRemoved []int        `json:"seats_removed,omitempty"`
}

// applyTo merges the delta into s. s must be a private copy; on error it
// may be partially modified and must be discarded.
func (d *Delta) applyTo(s *TableState) error {
	if d.Status != nil {
		s.Status = *d.Status
	}
	if d.Street != nil {
		s.Street = *d.Street
	}
	if d.HandID != nil {
		s.HandID = *d.HandID
	}
	if d.CommunityCards != nil {
		s.CommunityCards = cloneCards(*d.CommunityCards)
	}
	if d.Pot != nil {
		s.Pot = *d.Pot
	}
	if d.Pots != nil {
		s.Pots = nil
		for _, p := range *d.Pots {
			p.Eligible = append([]string(nil), p.Eligible...)
			s.Pots = append(s.Pots, p)
		}
	}
	if d.CurrentBet != nil {
		s.CurrentBet = *d.CurrentBet
	}
	if d.MinRaise != nil {
		s.MinRaise = *d.MinRaise
	}
	if d.BigBlind != nil {
		s.BigBlind = *d.BigBlind
	}
	if d.CurrentActorID != nil {
		s.CurrentActorID = *d.CurrentActorID
	}
	if d.TurnDeadline != nil {
		s.TurnDeadline = *d.TurnDeadline
	}
	if d.TurnDurationSeconds != nil {
		s.TurnDurationSeconds = *d.TurnDurationSeconds
	}
	if d.HoleCards != nil {
		if len(*d.HoleCards) == 0 {
			s.HoleCards = nil
		} else {
			s.HoleCards = cloneCards(*d.HoleCards)
		}
	}
	if d.LastAction != nil {
		la := *d.LastAction
		s.LastAction = &la
	}
	switch {
	case d.ClearHandResult:
		s.HandResult = nil
	case d.HandResult != nil:
		s.HandResult = d.HandResult.clone()
	}
	switch {
	case d.ClearVoting:
		s.Voting = nil
	case d.Voting != nil:
		v := *d.Voting
		v.Ready = append([]string(nil), d.Voting.Ready...)
		s.Voting = &v
	}
	switch {
	case d.ClearAllowedActions:
		s.AllowedActions = nil
	case d.AllowedActions != nil:
		aa := *d.AllowedActions
		aa.Actions = append([]ActionType(nil), d.AllowedActions.Actions...)
		s.AllowedActions = &aa
	}
	if d.TotalWagered != nil {
		s.TotalWagered = *d.TotalWagered
	}

	for _, pos := range d.SeatsRemoved {
		i := s.seatIndex(pos)
		if i < 0 {
			return fmt.Errorf("%w: remove of empty seat %d", ErrInvariant, pos)
		}
		s.Seats = append(s.Seats[:i], s.Seats[i+1:]...)
	}
	for _, seat := range d.SeatUpserts {
		if i := s.seatIndex(seat.Position); i >= 0 {
			s.Seats[i] = seat
		} else {
			s.Seats = append(s.Seats, seat)
		}
	}
	for _, sd := range d.SeatUpdates {
		i := s.seatIndex(sd.Position)
		if i < 0 {
			return fmt.Errorf("%w: update of empty seat %d", ErrInvariant, sd.Position)
		}
		sd.mergeInto(&s.Seats[i])
	}

	s.Sequence = d.Sequence
	s.normalize()
	return nil
}

func (sd *SeatDelta) mergeInto(seat *PlayerSeat) {
	if sd.DisplayName != nil {
		seat.DisplayName = *sd.DisplayName
	}
	if sd.Stack != nil {
		seat.Stack = *sd.Stack
	}
	if sd.Bet != nil {
		seat.Bet = *sd.Bet
	}
	if sd.InHand != nil {
		seat.InHand = *sd.InHand
	}
	if sd.IsButton != nil {
		seat.IsButton = *sd.IsButton
	}
	if sd.IsSmallBlind != nil {
		seat.IsSmallBlind = *sd.IsSmallBlind
	}
	if sd.IsBigBlind != nil {
		seat.IsBigBlind = *sd.IsBigBlind
	}
	if sd.HasActed != nil {
		seat.HasActed = *sd.HasActed
	}
	if sd.SittingOut != nil {
		seat.SittingOut = *sd.SittingOut
	}
}
