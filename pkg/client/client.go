// Package client composes the table synchronization pieces into a single
// table client: the reconciler, the streaming session, animations, the
// countdowns, action submission and the hand journal.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/decred/slog"
	"github.com/vctt94/pokertablesync/pkg/actions"
	"github.com/vctt94/pokertablesync/pkg/animation"
	"github.com/vctt94/pokertablesync/pkg/countdown"
	"github.com/vctt94/pokertablesync/pkg/history"
	"github.com/vctt94/pokertablesync/pkg/session"
	"github.com/vctt94/pokertablesync/pkg/table"
	"github.com/vctt94/pokertablesync/pkg/uimode"
	"github.com/vctt94/pokertablesync/pkg/utils"
	"google.golang.org/grpc"
)

// Message types for UI communication.
type (
	// StateUpdatedMsg carries the recomputed view after a state change.
	StateUpdatedMsg TableView

	// ConnStateMsg reports a connection state change.
	ConnStateMsg struct {
		From, To session.ConnState
	}

	// CountdownMsg is a countdown tick.
	CountdownMsg struct {
		Kind     CountdownKind
		Snapshot countdown.Snapshot
	}

	// AnimationMsg reports an animation starting (Done false) or ending.
	AnimationMsg struct {
		Event    animation.Event
		Done     bool
		Canceled bool
	}
)

// CountdownKind tells turn and vote countdowns apart.
type CountdownKind string

const (
	TurnCountdown CountdownKind = "turn"
	VoteCountdown CountdownKind = "vote"
)

// TableView is everything derived from one table state. It is recomputed
// from scratch on every change.
type TableView struct {
	State   *table.TableState
	Version uint64
	Conn    session.ConnState

	// Allowed is nil when no action set could be derived; AllowedErr says
	// why.
	Allowed    *actions.AllowedActionSet
	AllowedErr error

	UI uimode.Result
}

// TableClientConfig configures a TableClient. Dialer, Endpoint and History
// are built from App when left nil.
type TableClientConfig struct {
	App           *AppConfig
	Notifications *NotificationManager
	LogBackend    *LogBackend

	Dialer   session.Dialer
	Endpoint actions.Endpoint
	History  *history.DB

	// Now and AfterFunc override the clocks in tests.
	Now       func() time.Time
	AfterFunc animation.AfterFunc
}

// TableClient follows a single table for one viewer.
type TableClient struct {
	cfg   *AppConfig
	ntfns *NotificationManager
	log   slog.Logger
	now   func() time.Time

	rec       *table.Reconciler
	sess      *session.Manager
	anims     *animation.Scheduler
	turn      *countdown.Tracker
	vote      *countdown.Tracker
	submitter *actions.Submitter
	history   *history.DB
	grpcConn  *grpc.ClientConn

	UpdatesCh chan tea.Msg
	ErrorsCh  chan error

	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	closeErr   error

	mtx         sync.Mutex
	view        TableView
	turnKey     string
	voteKey     string
	pulseKey    string
	lastHandRec string
	wasMyTurn   bool
	jumpNext    bool
	unsubscribe func()
}

// NewTableClient wires a table client. It does not connect; call Run.
func NewTableClient(ctx context.Context, cfg *TableClientConfig) (*TableClient, error) {
	if cfg == nil || cfg.App == nil {
		return nil, fmt.Errorf("cfg is nil")
	}
	if cfg.Notifications == nil {
		return nil, fmt.Errorf("notification manager cannot be nil - client startup aborted")
	}
	app := cfg.App

	logger := func(subsys string) slog.Logger {
		if cfg.LogBackend == nil {
			return slog.Disabled
		}
		return cfg.LogBackend.Logger(subsys)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if err := utils.EnsureDataDirExists(app.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	tc := &TableClient{
		cfg:        app,
		ntfns:      cfg.Notifications,
		log:        logger(SubsysClient),
		now:        now,
		rec:        table.NewReconciler(logger(SubsysReconciler)),
		anims:      animation.NewScheduler(logger(SubsysAnimation), cfg.AfterFunc),
		turn:       countdown.New(now),
		vote:       countdown.New(now),
		history:    cfg.History,
		UpdatesCh:  make(chan tea.Msg, 100),
		ErrorsCh:   make(chan error, 10),
		ctx:        ctx,
		cancelFunc: cancel,
	}
	tc.view.Conn = session.StateDisconnected

	creds := session.StaticSession{
		Table:  app.TableID,
		Viewer: app.PlayerID,
		Token:  app.SessionToken,
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &session.WSDialer{URL: app.ServerURL}
	}
	sess, err := session.NewManager(session.Config{
		Session:              creds,
		Dialer:               dialer,
		Reconciler:           tc.rec,
		Animations:           tc.anims,
		Log:                  logger(SubsysSession),
		ReconnectBaseWait:    app.ReconnectBaseWait,
		ReconnectMaxWait:     app.ReconnectMaxWait,
		MaxReconnectAttempts: app.MaxReconnectAttempts,
		HeartbeatTimeout:     app.HeartbeatTimeout,
		Now:                  now,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	tc.sess = sess

	endpoint := cfg.Endpoint
	if endpoint == nil {
		conn, err := SetupGRPCConnection(app.ActionAddr, app.ActionServerCert, app.Insecure)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to connect to action server: %v", err)
		}
		tc.grpcConn = conn
		endpoint = actions.NewGRPCEndpoint(conn, app.ActionTimeout)
	}
	tc.submitter, err = actions.NewSubmitter(actions.SubmitterConfig{
		TableID:     app.TableID,
		ViewerID:    app.PlayerID,
		Endpoint:    endpoint,
		Credentials: creds,
		States:      tc.rec,
		Log:         logger(SubsysActions),
	})
	if err != nil {
		tc.Close()
		return nil, err
	}

	if tc.history == nil && app.HistoryEnabled() {
		tc.history, err = history.Open(app.HistoryDB)
		if err != nil {
			tc.Close()
			return nil, fmt.Errorf("failed to open history db: %v", err)
		}
	}

	sess.OnStateChange(tc.onConnState)
	tc.unsubscribe = tc.rec.Subscribe(tc.onStateChange)

	if err := tc.validate(); err != nil {
		tc.Close()
		return nil, fmt.Errorf("client validation failed: %v", err)
	}
	return tc, nil
}

// Run connects and blocks until the session ends or ctx is done.
func (tc *TableClient) Run(ctx context.Context) error {
	return tc.sess.Run(ctx)
}

// View returns the latest derived view.
func (tc *TableClient) View() TableView {
	tc.mtx.Lock()
	defer tc.mtx.Unlock()
	return tc.view
}

// PlayerID is the viewer.
func (tc *TableClient) PlayerID() string {
	return tc.cfg.PlayerID
}

// ConnState returns the connection state.
func (tc *TableClient) ConnState() session.ConnState {
	return tc.sess.CurrentState()
}

// TurnCountdown reads the current actor's countdown.
func (tc *TableClient) TurnCountdown() countdown.Snapshot {
	return tc.turn.Read()
}

// VoteCountdown reads the inter-hand vote countdown.
func (tc *TableClient) VoteCountdown() countdown.Snapshot {
	return tc.vote.Read()
}

// ActiveAnimations is the number of animations in flight.
func (tc *TableClient) ActiveAnimations() int {
	return tc.anims.Len()
}

// RecentHands returns the journaled hands of this table, newest first.
func (tc *TableClient) RecentHands(limit int) ([]history.Hand, error) {
	if tc.history == nil {
		return nil, errors.New("hand history is disabled")
	}
	return tc.history.RecentHands(tc.cfg.TableID, limit)
}

// SubmitAction validates and submits an action for the viewer. Server
// rejections are also reported through the notification manager.
func (tc *TableClient) SubmitAction(ctx context.Context, action table.ActionType, amount *int64) error {
	_, err := tc.submitter.SubmitAction(ctx, action, amount)
	if err == nil {
		return nil
	}
	var rej *actions.RejectedError
	if errors.As(err, &rej) || errors.Is(err, actions.ErrUnauthorized) {
		tc.ntfns.notifyActionRejected(action, err, tc.now())
	}
	return err
}

// Close stops the session and releases every resource. It is safe to call
// more than once.
func (tc *TableClient) Close() error {
	tc.closeOnce.Do(func() {
		if tc.cancelFunc != nil {
			tc.cancelFunc()
		}
		if tc.sess != nil {
			tc.sess.Disconnect()
		}
		if tc.unsubscribe != nil {
			tc.unsubscribe()
		}
		tc.turn.Stop()
		tc.vote.Stop()
		tc.anims.CancelAll()

		var errs []error
		if tc.grpcConn != nil {
			errs = append(errs, tc.grpcConn.Close())
		}
		if tc.history != nil {
			errs = append(errs, tc.history.Close())
		}
		tc.closeErr = errors.Join(errs...)
	})
	return tc.closeErr
}

func (tc *TableClient) onConnState(from, to session.ConnState) {
	tc.mtx.Lock()
	tc.view.Conn = to
	if to == session.StateConnecting || to == session.StateSyncingSnapshot {
		tc.jumpNext = true
	}
	tc.mtx.Unlock()

	ts := tc.now()
	tc.ntfns.notifyConnState(tc.cfg.TableID, from, to, ts)
	if to == session.StateSyncingSnapshot {
		tc.ntfns.notifyResync(tc.cfg.TableID, ts)
	}
	if to != session.StateLive {
		tc.clearPulse()
	}
	tc.send(ConnStateMsg{From: from, To: to})
}

// onStateChange recomputes everything derived from the table state. It runs
// on the reconciler's publish path, so it must not apply state itself.
func (tc *TableClient) onStateChange(prev, next *table.TableState) {
	viewer := tc.cfg.PlayerID
	allowed, allowedErr := actions.Derive(next, viewer)
	view := TableView{
		State:      next,
		Version:    tc.rec.Version(),
		Conn:       tc.sess.CurrentState(),
		Allowed:    allowed,
		AllowedErr: allowedErr,
		UI:         uimode.Compute(uimode.InputsFromState(next, viewer)),
	}
	isMyTurn := view.UI.Mode == uimode.PlayerAction

	tc.mtx.Lock()
	tc.view = view
	turnStarted := isMyTurn && !tc.wasMyTurn
	tc.wasMyTurn = isMyTurn
	jump := tc.jumpNext
	tc.jumpNext = false
	tc.mtx.Unlock()

	tc.updateTurnCountdown(next)
	tc.updateVoteCountdown(next)

	// The first state after a (re)subscribe or resync jumps without
	// animating.
	if !jump && view.Conn == session.StateLive {
		for _, ev := range animation.Derive(prev, next) {
			tc.startAnimation(ev)
		}
	}

	tc.recordHandResult(next)

	ts := tc.now()
	if turnStarted {
		tc.ntfns.notifyTurnStarted(next.TableID, tc.turn.Deadline(), ts)
	}
	tc.ntfns.notifyStateUpdated(view, ts)
	tc.send(StateUpdatedMsg(view))
}

func turnKey(s *table.TableState) string {
	if s.Status != table.StatusPlaying || s.CurrentActorID == "" {
		return ""
	}
	return s.CurrentActorID + "|" + s.TurnDeadline
}

func (tc *TableClient) updateTurnCountdown(s *table.TableState) {
	key := turnKey(s)

	tc.mtx.Lock()
	changed := key != tc.turnKey
	tc.turnKey = key
	tc.mtx.Unlock()
	if !changed {
		return
	}

	if key == "" {
		tc.turn.Stop()
		tc.clearPulse()
		return
	}
	wasActive := tc.turn.Active()
	tc.turn.StartISO(s.TurnDeadline, time.Duration(s.TurnDurationSeconds)*time.Second)
	if !wasActive {
		go tc.turn.Run(tc.ctx, tc.onTurnTick)
	}
}

func (tc *TableClient) updateVoteCountdown(s *table.TableState) {
	var key string
	if s.Voting != nil && s.IsInterHand() {
		key = s.HandID + "|" + s.Voting.Deadline
	}

	tc.mtx.Lock()
	changed := key != tc.voteKey
	tc.voteKey = key
	tc.mtx.Unlock()
	if !changed {
		return
	}

	if key == "" {
		tc.vote.Stop()
		return
	}
	wasActive := tc.vote.Active()
	tc.vote.StartISO(s.Voting.Deadline, time.Duration(s.Voting.DurationSeconds)*time.Second)
	if !wasActive {
		go tc.vote.Run(tc.ctx, func(snap countdown.Snapshot) {
			tc.send(CountdownMsg{Kind: VoteCountdown, Snapshot: snap})
		})
	}
}

// onTurnTick forwards the tick and starts the timeout pulse on the actor's
// seat once the turn enters its final seconds.
func (tc *TableClient) onTurnTick(snap countdown.Snapshot) {
	tc.send(CountdownMsg{Kind: TurnCountdown, Snapshot: snap})

	if snap.Expired || snap.Remaining > animation.TimeoutWarning {
		return
	}
	if tc.sess.CurrentState() != session.StateLive {
		return
	}
	state := tc.rec.State()
	if state == nil {
		return
	}
	seat, ok := state.SeatOf(state.CurrentActorID)
	if !ok {
		return
	}
	ev := animation.NewTimeoutPulse(seat.Position, tc.turn.Deadline())

	tc.mtx.Lock()
	fire := ev.ID != tc.pulseKey
	tc.pulseKey = ev.ID
	tc.mtx.Unlock()
	if fire {
		tc.startAnimation(ev)
	}
}

func (tc *TableClient) clearPulse() {
	tc.mtx.Lock()
	id := tc.pulseKey
	tc.pulseKey = ""
	tc.mtx.Unlock()
	if id != "" {
		tc.anims.Cancel(id)
	}
}

func (tc *TableClient) startAnimation(ev animation.Event) {
	tc.anims.Start(ev, animation.Effect{
		Apply: func() { tc.send(AnimationMsg{Event: ev}) },
	}, func(ev animation.Event, canceled bool) {
		tc.send(AnimationMsg{Event: ev, Done: true, Canceled: canceled})
	})
}

// recordHandResult journals and announces each hand result once.
func (tc *TableClient) recordHandResult(s *table.TableState) {
	if s.HandResult == nil || s.HandID == "" {
		return
	}
	tc.mtx.Lock()
	seen := tc.lastHandRec == s.HandID
	tc.lastHandRec = s.HandID
	tc.mtx.Unlock()
	if seen {
		return
	}

	if tc.history != nil {
		recorded, err := tc.history.RecordHandResult(s.TableID, s.HandID, s.Sequence, s.CommunityCards, s.HandResult)
		if err != nil {
			tc.log.Errorf("Unable to record hand %s: %v", s.HandID, err)
			tc.sendErr(fmt.Errorf("record hand %s: %w", s.HandID, err))
		} else if recorded {
			tc.log.Debugf("Recorded hand %s (%d winners)", s.HandID, len(s.HandResult.Winners))
		}
	}
	tc.ntfns.notifyHandResult(s.TableID, s.HandID, s.HandResult, tc.cfg.PlayerID, tc.now())
}

// send delivers a UI message, dropping it when the channel is full.
func (tc *TableClient) send(msg tea.Msg) {
	select {
	case tc.UpdatesCh <- msg:
	case <-tc.ctx.Done():
	default:
		tc.log.Warn("Updates channel full, dropping update")
	}
}

func (tc *TableClient) sendErr(err error) {
	select {
	case tc.ErrorsCh <- err:
	default:
		tc.log.Warnf("Errors channel full, dropping: %v", err)
	}
}

// validate checks if the TableClient is properly initialized and ready to use.
func (tc *TableClient) validate() error {
	if tc.log == nil {
		return fmt.Errorf("logger is not initialized")
	}
	if tc.ntfns == nil {
		return fmt.Errorf("notification manager is not initialized")
	}
	if tc.sess == nil {
		return fmt.Errorf("session is not initialized")
	}
	if tc.submitter == nil {
		return fmt.Errorf("action submitter is not initialized")
	}
	if tc.cfg.TableID == "" {
		return fmt.Errorf("table ID is not set")
	}
	if tc.cfg.PlayerID == "" {
		return fmt.Errorf("player ID is not set")
	}
	if tc.UpdatesCh == nil {
		return fmt.Errorf("updates channel is not initialized")
	}
	if tc.ErrorsCh == nil {
		return fmt.Errorf("errors channel is not initialized")
	}
	return nil
}
