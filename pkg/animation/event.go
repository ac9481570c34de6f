// Package animation schedules cancelable table animations and derives them
// from consecutive table states.
package animation

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vctt94/pokertablesync/pkg/table"
)

// Type is the closed set of animation kinds.
type Type string

const (
	CardSlide     Type = "card_slide"
	CardFlip      Type = "card_flip"
	BetMovement   Type = "bet_movement"
	PotCollection Type = "pot_collection"
	WinHighlight  Type = "win_highlight"
	TimeoutPulse  Type = "timeout_pulse"
)

// Default durations per type.
var Durations = map[Type]time.Duration{
	CardSlide:     400 * time.Millisecond,
	CardFlip:      600 * time.Millisecond,
	BetMovement:   500 * time.Millisecond,
	PotCollection: 700 * time.Millisecond,
	WinHighlight:  2500 * time.Millisecond,
	TimeoutPulse:  time.Second,
}

// TimeoutWarning is the remaining turn time below which the actor's seat
// pulses.
const TimeoutWarning = 5 * time.Second

// Point is a layout coordinate supplied by the renderer.
type Point struct {
	X, Y float64
}

// Event is one animation. ID is stable for a logical event so that a
// redundant re-derivation replaces instead of duplicating it.
type Event struct {
	ID       string
	Type     Type
	Target   string
	From, To *Point
	Amount   int64
	Duration time.Duration
}

func newEvent(typ Type, target, stamp string) Event {
	return Event{
		ID:       fmt.Sprintf("%s-%s-%s", typ, target, stamp),
		Type:     typ,
		Target:   target,
		Duration: Durations[typ],
	}
}

func seatTarget(pos int) string { return "seat" + strconv.Itoa(pos) }

// actionStamp identifies the action that produced next.
func actionStamp(next *table.TableState) string {
	if la := next.LastAction; la != nil && la.Timestamp > 0 {
		return strconv.FormatInt(la.Timestamp, 10)
	}
	return "s" + strconv.FormatUint(next.Sequence, 10)
}

// handStamp identifies the hand next belongs to.
func handStamp(next *table.TableState) string {
	if next.HandID != "" {
		return next.HandID
	}
	return "s" + strconv.FormatUint(next.Sequence, 10)
}

// Derive returns the animations implied by the change from prev to next.
// A nil prev (first snapshot, resync) yields nothing: the view jumps.
func Derive(prev, next *table.TableState) []Event {
	if prev == nil || next == nil {
		return nil
	}
	var events []Event
	stamp := actionStamp(next)
	hand := handStamp(next)
	sameHand := prev.HandID == next.HandID

	for _, seat := range next.Seats {
		var prevBet int64
		if p, ok := prev.SeatAt(seat.Position); ok && sameHand {
			prevBet = p.Bet
		}
		if seat.Bet > prevBet {
			ev := newEvent(BetMovement, seatTarget(seat.Position), stamp)
			ev.Amount = seat.Bet - prevBet
			events = append(events, ev)
		}
	}

	if sameHand && prev.OutstandingBets() > 0 && next.OutstandingBets() == 0 && next.Pot > prev.Pot {
		ev := newEvent(PotCollection, "pot", stamp)
		ev.Amount = next.Pot - prev.Pot
		events = append(events, ev)
	}

	prevBoard := 0
	if sameHand {
		prevBoard = len(prev.CommunityCards)
	}
	for i := prevBoard; i < len(next.CommunityCards); i++ {
		events = append(events, newEvent(CardSlide, "board"+strconv.Itoa(i), hand))
	}

	if len(next.HoleCards) > 0 && (!sameHand || len(prev.HoleCards) == 0) {
		for i := range next.HoleCards {
			events = append(events, newEvent(CardSlide, "hole"+strconv.Itoa(i), hand))
		}
	}

	if hr := next.HandResult; hr != nil {
		var prevHR *table.HandResult
		if sameHand {
			prevHR = prev.HandResult
		}
		for _, rv := range hr.Revealed {
			if revealed(prevHR, rv.PlayerID) {
				continue
			}
			if seat, ok := next.SeatOf(rv.PlayerID); ok {
				events = append(events, newEvent(CardFlip, seatTarget(seat.Position), hand))
			}
		}
		if prevHR == nil {
			for _, w := range hr.Winners {
				if seat, ok := next.SeatOf(w.PlayerID); ok {
					ev := newEvent(WinHighlight, seatTarget(seat.Position), hand)
					ev.Amount = w.Amount
					events = append(events, ev)
				}
			}
		}
	}
	return events
}

func revealed(hr *table.HandResult, playerID string) bool {
	if hr == nil {
		return false
	}
	for _, rv := range hr.Revealed {
		if rv.PlayerID == playerID {
			return true
		}
	}
	return false
}

// NewTimeoutPulse builds the pulse shown on the actor's seat when the turn
// is about to time out. The ID is keyed on the deadline so a restarted
// turn gets a fresh pulse.
func NewTimeoutPulse(seatPosition int, deadline time.Time) Event {
	return newEvent(TimeoutPulse, seatTarget(seatPosition), strconv.FormatInt(deadline.UnixMilli(), 10))
}
