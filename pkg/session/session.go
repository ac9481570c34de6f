// Package session owns the streaming connection to the table server: it
// dials, subscribes, dispatches inbound messages to the reconciler, answers
// heartbeats, requests resyncs and reconnects with exponential backoff.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
	"github.com/vctt94/pokertablesync/pkg/statemachine"
	"github.com/vctt94/pokertablesync/pkg/table"
)

const (
	DefaultReconnectBaseWait = 500 * time.Millisecond
	DefaultReconnectMaxWait  = 30 * time.Second
	DefaultHeartbeatTimeout  = 45 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultDialTimeout       = 10 * time.Second
)

var (
	// ErrRetriesExhausted is returned by Wait when the reconnect ceiling was
	// reached.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	// ErrAlreadyRunning is returned by Connect on a running manager.
	ErrAlreadyRunning = errors.New("session already running")
	// ErrNotLive is returned when a message cannot be sent because there is
	// no open channel.
	ErrNotLive = errors.New("session not live")
)

// Reconciler is the state store fed by the session.
type Reconciler interface {
	ApplySnapshot(*table.TableState) error
	ApplyDelta(*table.Delta) error
	Sequence() uint64
	ResyncPending() bool
	MarkResyncPending()
	OnResync(table.ResyncFn)
	OnSnapshotApplied(table.SnapshotFn)
}

// Canceler cancels every scheduled animation.
type Canceler interface {
	CancelAll()
}

// StateChangeFn observes connection state changes.
type StateChangeFn func(from, to ConnState)

// Config configures a Manager.
type Config struct {
	Session    SessionContext
	Dialer     Dialer
	Reconciler Reconciler
	Animations Canceler
	Log        slog.Logger

	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	// MaxReconnectAttempts is the number of consecutive failed attempts
	// tolerated before giving up. Zero means unlimited.
	MaxReconnectAttempts int
	HeartbeatTimeout     time.Duration
	DialTimeout          time.Duration
	WriteTimeout         time.Duration

	// Now is used for pong timestamps. Defaults to time.Now.
	Now func() time.Time
}

func (cfg *Config) setDefaults() {
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

// Manager is the connection session manager.
type Manager struct {
	cfg Config
	log slog.Logger
	fsm *statemachine.StateMachine[ConnState]

	mtx      sync.Mutex
	ch       Channel
	cancel   context.CancelFunc
	done     chan struct{}
	runErr   error
	attempts int

	writeMtx sync.Mutex
}

// NewManager creates a disconnected manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Session == nil {
		return nil, errors.New("session context is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if cfg.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	cfg.setDefaults()

	m := &Manager{
		cfg: cfg,
		log: cfg.Log,
		fsm: newConnFSM(),
	}
	m.fsm.OnTransition(func(from, to ConnState) {
		m.log.Debugf("Connection %s -> %s", from, to)
		if to != StateLive && m.cfg.Animations != nil {
			m.cfg.Animations.CancelAll()
		}
	})
	cfg.Reconciler.OnResync(func(reason error) {
		if err := m.RequestResync(reason); err != nil && !errors.Is(err, ErrNotLive) {
			m.log.Warnf("Unable to request resync: %v", err)
		}
	})
	// Snapshots also arrive as action responses, so the stream is not the
	// only way out of syncing_snapshot.
	cfg.Reconciler.OnSnapshotApplied(func(uint64) { m.SnapshotApplied() })
	return m, nil
}

// CurrentState returns the connection state.
func (m *Manager) CurrentState() ConnState {
	return m.fsm.Current()
}

// OnStateChange registers an observer of connection state changes.
func (m *Manager) OnStateChange(fn StateChangeFn) {
	m.fsm.OnTransition(statemachine.TransitionFn[ConnState](fn))
}

// Connect starts the session in the background. Use Wait to collect the
// terminal error.
func (m *Manager) Connect(ctx context.Context) error {
	m.mtx.Lock()
	if m.done != nil {
		select {
		case <-m.done:
		default:
			m.mtx.Unlock()
			return ErrAlreadyRunning
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.runErr = nil
	m.attempts = 0
	done := m.done
	m.mtx.Unlock()

	go func() {
		err := m.run(ctx)
		m.mtx.Lock()
		m.runErr = err
		m.mtx.Unlock()
		close(done)
	}()
	return nil
}

// Wait blocks until the session stops and returns why. It returns nil after
// Disconnect or context cancellation.
func (m *Manager) Wait() error {
	m.mtx.Lock()
	done := m.done
	m.mtx.Unlock()
	if done == nil {
		return nil
	}
	<-done
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.runErr
}

// Run connects and blocks until the session ends.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Connect(ctx); err != nil {
		return err
	}
	return m.Wait()
}

// Disconnect stops the session: it closes the channel, stops any backoff
// timer and waits for the session goroutine to exit.
func (m *Manager) Disconnect() {
	m.mtx.Lock()
	cancel, done, ch := m.cancel, m.done, m.ch
	m.mtx.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		ch.Close()
	}
	if done != nil {
		<-done
	}

	m.mtx.Lock()
	m.done = nil
	m.cancel = nil
	m.mtx.Unlock()
	m.toDisconnected()
}

func (m *Manager) toDisconnected() {
	if m.fsm.Current() == StateDisconnected {
		return
	}
	if err := m.fsm.Transition(StateDisconnected); err != nil {
		m.log.Errorf("Unable to disconnect: %v", err)
	}
}

// RequestResync moves a live session to syncing_snapshot and asks the
// server for a fresh snapshot. While already syncing the request is sent
// again: the reconciler only asks once per failure (a gap, an invalid or
// undecodable message, a stale answer), never for deltas it drops while
// pending. When not connected the reconciler is only marked pending, since
// the next handshake delivers a snapshot anyway.
func (m *Manager) RequestResync(reason error) error {
	m.cfg.Reconciler.MarkResyncPending()

	ok, err := m.fsm.TransitionIf(StateSyncingSnapshot, StateLive)
	if err != nil {
		return err
	}
	if !ok && m.fsm.Current() != StateSyncingSnapshot {
		return ErrNotLive
	}

	why := ""
	if reason != nil {
		why = reason.Error()
	}
	m.log.Infof("Requesting snapshot for table %s: %s", m.cfg.Session.TableID(), why)
	msg, err := table.NewMessage(table.MsgTypeRequestSnapshot, 0, table.RequestSnapshotPayload{
		TableID:      m.cfg.Session.TableID(),
		LastSequence: m.cfg.Reconciler.Sequence(),
		Reason:       why,
	})
	if err != nil {
		return err
	}
	return m.send(msg)
}

// SnapshotApplied returns a syncing session to live. The reconciler calls it
// for every applied snapshot, from the stream or an action response.
func (m *Manager) SnapshotApplied() {
	if _, err := m.fsm.TransitionIf(StateLive, StateSyncingSnapshot); err != nil {
		m.log.Errorf("Unable to leave snapshot sync: %v", err)
	}
}

// send writes on the current channel. A write failure closes the channel so
// the read loop falls into reconnect.
func (m *Manager) send(msg table.Message) error {
	m.mtx.Lock()
	ch := m.ch
	m.mtx.Unlock()
	if ch == nil {
		return ErrNotLive
	}

	m.writeMtx.Lock()
	defer m.writeMtx.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()
	if err := ch.Write(ctx, msg); err != nil {
		ch.Close()
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// run is the session loop: connect, read until failure, back off, repeat.
func (m *Manager) run(ctx context.Context) error {
	for {
		if _, err := m.fsm.TransitionIf(StateConnecting, StateDisconnected, StateReconnectBackoff); err != nil {
			return err
		}

		ch, err := m.handshake(ctx)
		if err == nil {
			m.mtx.Lock()
			m.ch = ch
			m.attempts = 0
			m.mtx.Unlock()

			if _, err := m.fsm.TransitionIf(StateLive, StateConnecting); err != nil {
				return err
			}
			m.log.Infof("Subscribed to table %s", m.cfg.Session.TableID())

			err = m.readLoop(ctx, ch)

			m.mtx.Lock()
			m.ch = nil
			m.mtx.Unlock()
			ch.Close()
		}

		if ctx.Err() != nil {
			return nil
		}
		m.log.Warnf("Connection to table %s lost: %v", m.cfg.Session.TableID(), err)

		if err := m.backoff(ctx); err != nil {
			if errors.Is(err, ErrRetriesExhausted) {
				m.toDisconnected()
				return err
			}
			return nil
		}
	}
}

// handshake dials and subscribes. Any state the reconciler holds is marked
// stale until the subscription snapshot arrives.
func (m *Manager) handshake(ctx context.Context) (Channel, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	ch, err := m.cfg.Dialer.Dial(dialCtx, m.cfg.Session)
	if err != nil {
		return nil, err
	}

	seq := m.cfg.Reconciler.Sequence()
	if seq > 0 {
		m.cfg.Reconciler.MarkResyncPending()
	}
	msg, err := table.NewMessage(table.MsgTypeSubscribe, 0, table.SubscribePayload{
		TableID:      m.cfg.Session.TableID(),
		LastSequence: seq,
	})
	if err != nil {
		ch.Close()
		return nil, err
	}
	if err := ch.Write(dialCtx, msg); err != nil {
		ch.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return ch, nil
}

// backoff waits before the next attempt. It returns ErrRetriesExhausted
// when the ceiling is reached and ctx.Err() when canceled.
func (m *Manager) backoff(ctx context.Context) error {
	if _, err := m.fsm.TransitionIf(StateReconnectBackoff, StateConnecting, StateLive, StateSyncingSnapshot); err != nil {
		return err
	}

	m.mtx.Lock()
	m.attempts++
	attempt := m.attempts
	m.mtx.Unlock()

	if limit := m.cfg.MaxReconnectAttempts; limit > 0 && attempt > limit {
		m.log.Errorf("Giving up on table %s after %d attempts", m.cfg.Session.TableID(), limit)
		return ErrRetriesExhausted
	}

	wait := BackoffDelay(m.cfg.ReconnectBaseWait, m.cfg.ReconnectMaxWait, attempt)
	m.log.Infof("Reconnecting in %s (attempt %d)", wait, attempt)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BackoffDelay returns base*2^(attempt-1) capped at maxWait.
func BackoffDelay(base, maxWait time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxWait || d <= 0 {
			return maxWait
		}
	}
	return min(d, maxWait)
}

// readLoop reads until the channel fails. A read that sees nothing for
// HeartbeatTimeout fails the transport.
func (m *Manager) readLoop(ctx context.Context, ch Channel) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, m.cfg.HeartbeatTimeout)
		msg, err := ch.Read(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("no message for %s: %w", m.cfg.HeartbeatTimeout, err)
			}
			return err
		}
		m.dispatch(msg)
	}
}

// dispatch is the single entry point for inbound messages.
func (m *Manager) dispatch(msg table.Message) {
	v, err := msg.Parse()
	if err != nil {
		m.log.Errorf("Undecodable %q message: %v\n%s", msg.Type, err, spew.Sdump(msg))
		if err := m.RequestResync(err); err != nil && !errors.Is(err, ErrNotLive) {
			m.log.Warnf("Unable to request resync: %v", err)
		}
		return
	}

	switch p := v.(type) {
	case *table.TableState:
		// Success returns to live through OnSnapshotApplied. Invalid
		// snapshots request a resync through OnResync.
		err := m.cfg.Reconciler.ApplySnapshot(p)
		switch {
		case err == nil:
		case errors.Is(err, table.ErrStaleSnapshot):
			m.log.Debugf("Ignoring stale snapshot: %v", err)
			if m.cfg.Reconciler.ResyncPending() {
				if err := m.RequestResync(err); err != nil && !errors.Is(err, ErrNotLive) {
					m.log.Warnf("Unable to request resync: %v", err)
				}
			}
		default:
			m.log.Warnf("Snapshot rejected: %v", err)
		}

	case *table.Delta:
		// Sequence and invariant failures request a resync through the
		// reconciler's OnResync hook.
		if err := m.cfg.Reconciler.ApplyDelta(p); err != nil {
			m.log.Debugf("Delta seq=%d not applied: %v", p.Sequence, err)
		}

	case *table.HeartbeatPayload:
		pong, err := table.NewMessage(table.MsgTypePong, 0, table.PongPayload{
			ServerTime: p.ServerTime,
			ClientTime: m.cfg.Now().UnixNano(),
		})
		if err == nil {
			err = m.send(pong)
		}
		if err != nil {
			m.log.Warnf("Unable to answer heartbeat: %v", err)
		}

	case *table.ErrorPayload:
		m.log.Warnf("Server error on table %s: %s", m.cfg.Session.TableID(), p.Message)

	default:
		m.log.Warnf("Unexpected %q message from server", msg.Type)
	}
}
