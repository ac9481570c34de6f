package table

import (
	"fmt"
	"sort"
)

// Status is the table/hand status.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusPlaying   Status = "playing"
	StatusShowdown  Status = "showdown"
	StatusInterHand Status = "inter_hand"
	StatusClosed    Status = "closed"
)

// Street is the betting street of the current hand.
type Street string

const (
	StreetPreflop  Street = "preflop"
	StreetFlop     Street = "flop"
	StreetTurn     Street = "turn"
	StreetRiver    Street = "river"
	StreetShowdown Street = "showdown"
)

// ActionType is an action a player may submit.
type ActionType string

const (
	ActionFold  ActionType = "fold"
	ActionCheck ActionType = "check"
	ActionCall  ActionType = "call"
	ActionBet   ActionType = "bet"
	ActionRaise ActionType = "raise"
	ActionAllIn ActionType = "all_in"
	ActionReady ActionType = "ready"
)

// IsWager reports whether the action carries an amount.
func (a ActionType) IsWager() bool {
	return a == ActionBet || a == ActionRaise
}

// Valid reports whether a is one of the known action types.
func (a ActionType) Valid() bool {
	switch a {
	case ActionFold, ActionCheck, ActionCall, ActionBet, ActionRaise, ActionAllIn, ActionReady:
		return true
	}
	return false
}

// MaxCommunityCards is the size of a full board.
const MaxCommunityCards = 5

// PlayerSeat is one occupied seat at the table.
type PlayerSeat struct {
	Position     int    `json:"position"`
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	Stack        int64  `json:"stack"`
	Bet          int64  `json:"bet"`
	InHand       bool   `json:"in_hand"`
	IsButton     bool   `json:"is_button"`
	IsSmallBlind bool   `json:"is_small_blind"`
	IsBigBlind   bool   `json:"is_big_blind"`
	HasActed     bool   `json:"has_acted"`
	SittingOut   bool   `json:"sitting_out"`
}

// Pot is one main or side pot.
type Pot struct {
	Index    int      `json:"index"`
	Amount   int64    `json:"amount"`
	Eligible []string `json:"eligible"`
}

// LastAction summarizes the most recent player action.
type LastAction struct {
	PlayerID  string     `json:"player_id"`
	Action    ActionType `json:"action"`
	Amount    int64      `json:"amount,omitempty"`
	Timestamp int64      `json:"timestamp,omitempty"` // unix millis
}

// Winner is one pot award.
type Winner struct {
	PlayerID        string `json:"player_id"`
	Amount          int64  `json:"amount"`
	HandDescription string `json:"hand_description,omitempty"`
}

// RevealedHand is a hand turned face up at showdown.
type RevealedHand struct {
	PlayerID string `json:"player_id"`
	Cards    []Card `json:"cards"`
}

// HandResult is the showdown summary.
type HandResult struct {
	Winners  []Winner       `json:"winners"`
	Revealed []RevealedHand `json:"revealed,omitempty"`
}

// Voting is the inter-hand ready vote.
type Voting struct {
	Deadline        string   `json:"deadline,omitempty"` // RFC3339
	DurationSeconds int      `json:"duration_seconds,omitempty"`
	Ready           []string `json:"ready"`
}

// HasVoted reports whether the player is in the ready set.
func (v *Voting) HasVoted(playerID string) bool {
	if v == nil {
		return false
	}
	for _, id := range v.Ready {
		if id == playerID {
			return true
		}
	}
	return false
}

// ServerAllowedActions are the bounds the server declares for the current
// actor. When present they take precedence over the locally computed
// fallback.
type ServerAllowedActions struct {
	PlayerID  string       `json:"player_id"`
	Actions   []ActionType `json:"actions"`
	MinAmount int64        `json:"min_amount,omitempty"`
	MaxAmount int64        `json:"max_amount,omitempty"`
}

// TableState is the normalized model of a single table. Values published
// by the Reconciler are never mutated; use Clone before editing.
type TableState struct {
	TableID             string                `json:"table_id"`
	HandID              string                `json:"hand_id,omitempty"`
	Status              Status                `json:"status"`
	Street              Street                `json:"street,omitempty"`
	CommunityCards      []Card                `json:"community_cards"`
	Pot                 int64                 `json:"pot"`
	Pots                []Pot                 `json:"pots,omitempty"`
	CurrentBet          int64                 `json:"current_bet"`
	MinRaise            int64                 `json:"min_raise"`
	BigBlind            int64                 `json:"big_blind,omitempty"`
	CurrentActorID      string                `json:"current_actor_id,omitempty"`
	TurnDeadline        string                `json:"turn_deadline,omitempty"` // RFC3339
	TurnDurationSeconds int                   `json:"turn_duration_seconds,omitempty"`
	Sequence            uint64                `json:"sequence"`
	Seats               []PlayerSeat          `json:"seats"`
	HoleCards           []Card                `json:"hole_cards,omitempty"`
	LastAction          *LastAction           `json:"last_action,omitempty"`
	HandResult          *HandResult           `json:"hand_result,omitempty"`
	Voting              *Voting               `json:"voting,omitempty"`
	AllowedActions      *ServerAllowedActions `json:"allowed_actions,omitempty"`
	TotalWagered        int64                 `json:"total_wagered,omitempty"`
}

// SeatOf returns the seat occupied by the user.
func (s *TableState) SeatOf(userID string) (PlayerSeat, bool) {
	if s == nil || userID == "" {
		return PlayerSeat{}, false
	}
	for _, seat := range s.Seats {
		if seat.UserID == userID {
			return seat, true
		}
	}
	return PlayerSeat{}, false
}

// SeatAt returns the seat at the given position.
func (s *TableState) SeatAt(position int) (PlayerSeat, bool) {
	if s == nil {
		return PlayerSeat{}, false
	}
	for _, seat := range s.Seats {
		if seat.Position == position {
			return seat, true
		}
	}
	return PlayerSeat{}, false
}

func (s *TableState) seatIndex(position int) int {
	for i := range s.Seats {
		if s.Seats[i].Position == position {
			return i
		}
	}
	return -1
}

// IsShowdown reports whether the hand is at showdown.
func (s *TableState) IsShowdown() bool {
	return s != nil && (s.Status == StatusShowdown || s.Street == StreetShowdown)
}

// IsInterHand reports whether inter-hand voting is active.
func (s *TableState) IsInterHand() bool {
	return s != nil && s.Status == StatusInterHand
}

// IsWaiting reports whether the table is waiting for players or a start.
func (s *TableState) IsWaiting() bool {
	return s == nil || s.Status == StatusWaiting || s.Status == StatusClosed
}

// OutstandingBets is the sum of bets contributed this street but not yet
// collected into a pot.
func (s *TableState) OutstandingBets() int64 {
	var total int64
	for _, seat := range s.Seats {
		total += seat.Bet
	}
	return total
}

// Clone returns a deep copy.
func (s *TableState) Clone() *TableState {
	if s == nil {
		return nil
	}
	c := *s
	c.CommunityCards = cloneCards(s.CommunityCards)
	c.HoleCards = cloneCards(s.HoleCards)
	if s.Pots != nil {
		c.Pots = make([]Pot, len(s.Pots))
		for i, p := range s.Pots {
			p.Eligible = append([]string(nil), p.Eligible...)
			c.Pots[i] = p
		}
	}
	if s.Seats != nil {
		c.Seats = append([]PlayerSeat(nil), s.Seats...)
	}
	if s.LastAction != nil {
		la := *s.LastAction
		c.LastAction = &la
	}
	if s.HandResult != nil {
		c.HandResult = s.HandResult.clone()
	}
	if s.Voting != nil {
		v := *s.Voting
		v.Ready = append([]string(nil), s.Voting.Ready...)
		c.Voting = &v
	}
	if s.AllowedActions != nil {
		aa := *s.AllowedActions
		aa.Actions = append([]ActionType(nil), s.AllowedActions.Actions...)
		c.AllowedActions = &aa
	}
	return &c
}

func (hr *HandResult) clone() *HandResult {
	c := &HandResult{
		Winners: append([]Winner(nil), hr.Winners...),
	}
	if hr.Revealed != nil {
		c.Revealed = make([]RevealedHand, len(hr.Revealed))
		for i, r := range hr.Revealed {
			c.Revealed[i] = RevealedHand{PlayerID: r.PlayerID, Cards: cloneCards(r.Cards)}
		}
	}
	return c
}

func cloneCards(cards []Card) []Card {
	if cards == nil {
		return nil
	}
	return append([]Card(nil), cards...)
}

// normalize sorts seats by position so readers always see a stable order.
func (s *TableState) normalize() {
	sort.SliceStable(s.Seats, func(i, j int) bool {
		return s.Seats[i].Position < s.Seats[j].Position
	})
	if s.Voting != nil {
		sort.Strings(s.Voting.Ready)
	}
}

// Validate checks the invariants every published state must satisfy.
func (s *TableState) Validate() error {
	if s == nil {
		return invariantf("nil state")
	}
	if s.TableID == "" {
		return invariantf("missing table id")
	}
	if len(s.CommunityCards) > MaxCommunityCards {
		return invariantf("%d community cards", len(s.CommunityCards))
	}
	if s.CurrentBet < 0 || s.MinRaise < 0 || s.Pot < 0 {
		return invariantf("negative betting amounts")
	}

	positions := make(map[int]struct{}, len(s.Seats))
	users := make(map[string]struct{}, len(s.Seats))
	for _, seat := range s.Seats {
		if _, dup := positions[seat.Position]; dup {
			return invariantf("duplicate seat position %d", seat.Position)
		}
		positions[seat.Position] = struct{}{}
		if seat.UserID != "" {
			if _, dup := users[seat.UserID]; dup {
				return invariantf("user %s seated twice", seat.UserID)
			}
			users[seat.UserID] = struct{}{}
		}
		if seat.Stack < 0 || seat.Bet < 0 {
			return invariantf("seat %d has stack %d bet %d", seat.Position, seat.Stack, seat.Bet)
		}
	}

	if len(s.Pots) > 0 {
		var sum int64
		for _, p := range s.Pots {
			if p.Amount < 0 {
				return invariantf("pot %d is negative", p.Index)
			}
			sum += p.Amount
		}
		if sum != s.Pot {
			return invariantf("pot total %d != sum of pots %d", s.Pot, sum)
		}
	}
	if s.TotalWagered > 0 {
		if got := s.Pot + s.OutstandingBets(); got != s.TotalWagered {
			return invariantf("pots+bets %d != wagered %d", got, s.TotalWagered)
		}
	}
	return nil
}

func invariantf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
