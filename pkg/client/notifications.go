package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/vctt94/pokertablesync/pkg/session"
	"github.com/vctt94/pokertablesync/pkg/table"
)

// Following are the notification types. Add new types at the bottom of this
// list, then add a notifyX() to NotificationManager and initialize a new
// container in NewNotificationManager().

const onStateUpdatedNtfnType = "onStateUpdated"

// OnStateUpdatedNtfn is called with every recomputed table view.
type OnStateUpdatedNtfn func(TableView, time.Time)

func (_ OnStateUpdatedNtfn) typ() string { return onStateUpdatedNtfnType }

const onConnStateNtfnType = "onConnState"

// OnConnStateNtfn is called on every connection state change.
type OnConnStateNtfn func(from, to session.ConnState, ts time.Time)

func (_ OnConnStateNtfn) typ() string { return onConnStateNtfnType }

const onResyncNtfnType = "onResync"

// OnResyncNtfn is called when the client starts syncing a fresh snapshot.
type OnResyncNtfn func(tableID string, ts time.Time)

func (_ OnResyncNtfn) typ() string { return onResyncNtfnType }

const onActionRejectedNtfnType = "onActionRejected"

// OnActionRejectedNtfn is called when the server refuses a submitted
// action.
type OnActionRejectedNtfn func(action table.ActionType, err error, ts time.Time)

func (_ OnActionRejectedNtfn) typ() string { return onActionRejectedNtfnType }

const onHandResultNtfnType = "onHandResult"

// OnHandResultNtfn is called once per hand when its result is first seen.
type OnHandResultNtfn func(handID string, result *table.HandResult, ts time.Time)

func (_ OnHandResultNtfn) typ() string { return onHandResultNtfnType }

const onTurnStartedNtfnType = "onTurnStarted"

// OnTurnStartedNtfn is called when the viewer becomes the actor.
type OnTurnStartedNtfn func(tableID string, deadline time.Time, ts time.Time)

func (_ OnTurnStartedNtfn) typ() string { return onTurnStartedNtfnType }

// UINotificationsConfig is the configuration for how UI notifications are
// emitted.
type UINotificationsConfig struct {
	// YourTurn flags whether to emit a notification when the viewer must
	// act.
	YourTurn bool

	HandResults bool

	// MaxLength is the max length of messages emitted.
	MaxLength int

	// EmitInterval is the interval to wait for additional messages before
	// emitting a notification. Multiple messages received within this
	// interval will only generate a single UI notification.
	EmitInterval time.Duration

	// CancelEmissionChannel may be set to a Context.Done() channel to
	// cancel emission of notifications.
	CancelEmissionChannel <-chan struct{}
}

func (cfg *UINotificationsConfig) clip(msg string) string {
	if cfg.MaxLength <= 0 || len(msg) < cfg.MaxLength {
		return msg
	}
	return msg[:cfg.MaxLength]
}

// UINotificationType is the type of notification.
type UINotificationType string

const (
	UINtfnYourTurn   UINotificationType = "yourturn"
	UINtfnHandResult UINotificationType = "handresult"
	UINtfnConnLost   UINotificationType = "connlost"
	UINtfnMultiple   UINotificationType = "multiple"
)

// UINotification is a notification that should be shown as an UI alert.
type UINotification struct {
	// Type of notification.
	Type UINotificationType `json:"type"`

	// Text of the notification.
	Text string `json:"text"`

	// Count will be greater than one when multiple notifications were
	// batched.
	Count int `json:"count"`

	// TableID is the table the notification is about.
	TableID string `json:"table_id"`

	// Timestamp is the unix timestamp in seconds of the first message.
	Timestamp int64 `json:"timestamp"`
}

const onUINtfnType = "uintfn"

// OnUINotification is called when a notification should be shown by the UI to
// the user.
type OnUINotification func(ntfn UINotification)

func (_ OnUINotification) typ() string { return onUINtfnType }

// The following is used only in tests.

const onTestNtfnType = "testNtfnType"

type onTestNtfn func()

func (_ onTestNtfn) typ() string { return onTestNtfnType }

// Following is the generic notification code.

type NotificationRegistration struct {
	unreg func() bool
}

func (reg NotificationRegistration) Unregister() bool {
	return reg.unreg()
}

type NotificationHandler interface {
	typ() string
}

type handler[T any] struct {
	handler T
	async   bool
}

type handlersFor[T any] struct {
	mtx      sync.Mutex
	next     uint
	handlers map[uint]handler[T]
}

func (hn *handlersFor[T]) register(h T, async bool) NotificationRegistration {
	var id uint

	hn.mtx.Lock()
	id, hn.next = hn.next, hn.next+1
	if hn.handlers == nil {
		hn.handlers = make(map[uint]handler[T])
	}
	hn.handlers[id] = handler[T]{handler: h, async: async}
	registered := true
	hn.mtx.Unlock()

	return NotificationRegistration{
		unreg: func() bool {
			hn.mtx.Lock()
			res := registered
			if registered {
				delete(hn.handlers, id)
				registered = false
			}
			hn.mtx.Unlock()
			return res
		},
	}
}

func (hn *handlersFor[T]) visit(f func(T)) {
	hn.mtx.Lock()
	for _, h := range hn.handlers {
		if h.async {
			go f(h.handler)
		} else {
			f(h.handler)
		}
	}
	hn.mtx.Unlock()
}

func (hn *handlersFor[T]) Register(v interface{}, async bool) NotificationRegistration {
	if h, ok := v.(T); !ok {
		panic("wrong type")
	} else {
		return hn.register(h, async)
	}
}

func (hn *handlersFor[T]) AnyRegistered() bool {
	hn.mtx.Lock()
	res := len(hn.handlers) > 0
	hn.mtx.Unlock()
	return res
}

type handlersRegistry interface {
	Register(v interface{}, async bool) NotificationRegistration
	AnyRegistered() bool
}

type NotificationManager struct {
	handlers map[string]handlersRegistry

	uiMtx      sync.Mutex
	uiConfig   UINotificationsConfig
	uiNextNtfn UINotification
	uiTimer    *time.Timer
}

// UpdateUIConfig updates the config used to generate UI notifications about
// turns, hand results and connection loss.
func (nmgr *NotificationManager) UpdateUIConfig(cfg UINotificationsConfig) {
	nmgr.uiMtx.Lock()
	nmgr.uiConfig = cfg
	nmgr.uiMtx.Unlock()
}

func (nmgr *NotificationManager) register(handler NotificationHandler, async bool) NotificationRegistration {
	handlers := nmgr.handlers[handler.typ()]
	if handlers == nil {
		panic(fmt.Sprintf("forgot to init the handler type %T "+
			"in NewNotificationManager", handler))
	}

	return handlers.Register(handler, async)
}

// Register registers a callback notification function that is called
// asynchronously to the event (i.e. in a separate goroutine).
func (nmgr *NotificationManager) Register(handler NotificationHandler) NotificationRegistration {
	return nmgr.register(handler, true)
}

// RegisterSync registers a callback notification function that is called
// synchronously to the event. This callback SHOULD return as soon as possible,
// otherwise the client might hang.
//
// Synchronous callbacks are mostly intended for tests and when external
// callers need to ensure proper order of multiple sequential events.
func (nmgr *NotificationManager) RegisterSync(handler NotificationHandler) NotificationRegistration {
	return nmgr.register(handler, false)
}

// AnyRegistered returns true if there are any handlers registered for the given
// handler type.
func (nmgr *NotificationManager) AnyRegistered(handler NotificationHandler) bool {
	return nmgr.handlers[handler.typ()].AnyRegistered()
}

func (nmgr *NotificationManager) waitAndEmitUINtfn(c <-chan time.Time, cancel <-chan struct{}) {
	select {
	case <-c:
	case <-cancel:
		return
	}

	nmgr.uiMtx.Lock()
	n := nmgr.uiNextNtfn
	nmgr.uiNextNtfn = UINotification{}
	nmgr.uiMtx.Unlock()

	nmgr.handlers[onUINtfnType].(*handlersFor[OnUINotification]).
		visit(func(h OnUINotification) { h(n) })
}

func (nmgr *NotificationManager) addUINtfn(tableID string, typ UINotificationType, msg string, ts time.Time) {
	nmgr.uiMtx.Lock()
	defer nmgr.uiMtx.Unlock()

	n := &nmgr.uiNextNtfn
	cfg := &nmgr.uiConfig

	switch {
	case typ == UINtfnYourTurn && !cfg.YourTurn,
		typ == UINtfnHandResult && !cfg.HandResults:
		return

	case n.Count == 0:
		n.Type = typ
		n.Count = 1
		n.TableID = tableID
		n.Timestamp = ts.Unix()
		n.Text = cfg.clip(msg)

	default:
		n.Type = UINtfnMultiple
		n.Count += 1
		n.Text = fmt.Sprintf("%d notifications received", n.Count)
	}

	// The first notification starts the timer to emit the actual UI
	// notification. Other notifications will get batched.
	if n.Count == 1 {
		nmgr.uiTimer.Reset(cfg.EmitInterval)
		c, cancel := nmgr.uiTimer.C, cfg.CancelEmissionChannel
		go nmgr.waitAndEmitUINtfn(c, cancel)
	}
}

// Following are the notifyX() calls (one for each type of notification).

func (nmgr *NotificationManager) notifyTest() {
	nmgr.handlers[onTestNtfnType].(*handlersFor[onTestNtfn]).
		visit(func(h onTestNtfn) { h() })
}

func (nmgr *NotificationManager) notifyStateUpdated(view TableView, ts time.Time) {
	nmgr.handlers[onStateUpdatedNtfnType].(*handlersFor[OnStateUpdatedNtfn]).
		visit(func(h OnStateUpdatedNtfn) { h(view, ts) })
}

func (nmgr *NotificationManager) notifyConnState(tableID string, from, to session.ConnState, ts time.Time) {
	nmgr.handlers[onConnStateNtfnType].(*handlersFor[OnConnStateNtfn]).
		visit(func(h OnConnStateNtfn) { h(from, to, ts) })

	if from == session.StateLive && to == session.StateReconnectBackoff {
		nmgr.addUINtfn(tableID, UINtfnConnLost, "Connection lost, reconnecting", ts)
	}
}

func (nmgr *NotificationManager) notifyResync(tableID string, ts time.Time) {
	nmgr.handlers[onResyncNtfnType].(*handlersFor[OnResyncNtfn]).
		visit(func(h OnResyncNtfn) { h(tableID, ts) })
}

func (nmgr *NotificationManager) notifyActionRejected(action table.ActionType, err error, ts time.Time) {
	nmgr.handlers[onActionRejectedNtfnType].(*handlersFor[OnActionRejectedNtfn]).
		visit(func(h OnActionRejectedNtfn) { h(action, err, ts) })
}

func (nmgr *NotificationManager) notifyHandResult(tableID, handID string, result *table.HandResult, viewerID string, ts time.Time) {
	nmgr.handlers[onHandResultNtfnType].(*handlersFor[OnHandResultNtfn]).
		visit(func(h OnHandResultNtfn) { h(handID, result, ts) })

	var won int64
	for _, w := range result.Winners {
		if w.PlayerID == viewerID {
			won += w.Amount
		}
	}
	msg := fmt.Sprintf("Hand %s finished", handID)
	if won > 0 {
		msg = fmt.Sprintf("You won %d chips in hand %s", won, handID)
	}
	nmgr.addUINtfn(tableID, UINtfnHandResult, msg, ts)
}

func (nmgr *NotificationManager) notifyTurnStarted(tableID string, deadline time.Time, ts time.Time) {
	nmgr.handlers[onTurnStartedNtfnType].(*handlersFor[OnTurnStartedNtfn]).
		visit(func(h OnTurnStartedNtfn) { h(tableID, deadline, ts) })

	nmgr.addUINtfn(tableID, UINtfnYourTurn, fmt.Sprintf("Your turn at table %s", tableID), ts)
}

func NewNotificationManager() *NotificationManager {
	nmgr := &NotificationManager{
		uiConfig: UINotificationsConfig{
			YourTurn:     true,
			HandResults:  true,
			MaxLength:    255,
			EmitInterval: 2 * time.Second,
		},
		uiTimer: time.NewTimer(time.Hour * 24),
		handlers: map[string]handlersRegistry{
			onTestNtfnType:           &handlersFor[onTestNtfn]{},
			onStateUpdatedNtfnType:   &handlersFor[OnStateUpdatedNtfn]{},
			onConnStateNtfnType:      &handlersFor[OnConnStateNtfn]{},
			onResyncNtfnType:         &handlersFor[OnResyncNtfn]{},
			onActionRejectedNtfnType: &handlersFor[OnActionRejectedNtfn]{},
			onHandResultNtfnType:     &handlersFor[OnHandResultNtfn]{},
			onTurnStartedNtfnType:    &handlersFor[OnTurnStartedNtfn]{},

			onUINtfnType: &handlersFor[OnUINotification]{},
		},
	}
	if !nmgr.uiTimer.Stop() {
		<-nmgr.uiTimer.C
	}

	return nmgr
}
