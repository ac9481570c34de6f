package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/vctt94/pokertablesync/pkg/table"
)

// Request is one action submission.
type Request struct {
	TableID    string           `json:"table_id"`
	ActionType table.ActionType `json:"action_type"`
	Amount     *int64           `json:"amount,omitempty"`
	RequestID  string           `json:"request_id"`
}

// Endpoint is the request/response path to the server. On success the
// server returns the fresh full table state, which may be nil if it chose
// to publish it over the stream only.
type Endpoint interface {
	SubmitAction(ctx context.Context, credential string, req Request) (*table.TableState, error)
}

// Credentials provides the session credential attached to every request.
type Credentials interface {
	Credential() string
}

// StateStore is the subset of the reconciler used by the submitter.
type StateStore interface {
	State() *table.TableState
	ApplySnapshot(*table.TableState) error
}

// SubmitterConfig configures a Submitter.
type SubmitterConfig struct {
	TableID     string
	ViewerID    string
	Endpoint    Endpoint
	Credentials Credentials
	States      StateStore
	Log         slog.Logger

	// NewRequestID overrides the request id generator. Defaults to uuid v4.
	NewRequestID func() string
}

// Submitter validates actions against the current state and forwards legal
// ones to the server. It never predicts the resulting state.
type Submitter struct {
	cfg SubmitterConfig
	log slog.Logger
}

// NewSubmitter creates a submitter.
func NewSubmitter(cfg SubmitterConfig) (*Submitter, error) {
	if cfg.Endpoint == nil {
		return nil, errors.New("endpoint is required")
	}
	if cfg.States == nil {
		return nil, errors.New("state store is required")
	}
	if cfg.ViewerID == "" {
		return nil, errors.New("viewer id is required")
	}
	if cfg.NewRequestID == nil {
		cfg.NewRequestID = uuid.NewString
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	return &Submitter{cfg: cfg, log: log}, nil
}

// Allowed returns the viewer's current legal action set.
func (s *Submitter) Allowed() (*AllowedActionSet, error) {
	return Derive(s.cfg.States.State(), s.cfg.ViewerID)
}

// Validate checks an action and amount against the current state without
// submitting it.
func (s *Submitter) Validate(action table.ActionType, amount *int64) error {
	set, err := s.Allowed()
	if err != nil {
		return err
	}
	return validateAgainst(set, action, amount)
}

func validateAgainst(set *AllowedActionSet, action table.ActionType, amount *int64) error {
	if !action.Valid() || !set.Has(action) {
		return validationErr(ReasonNoLegalAction, "%q not in %v", action, set.Actions)
	}
	if !action.IsWager() {
		return nil
	}
	if amount == nil {
		return validationErr(ReasonBelowMinimum, "%s requires an amount", action)
	}
	return set.ValidateAmount(*amount)
}

// SubmitAction validates the action and, if legal, sends it to the server. The
// returned state, when present, is applied to the store unless a newer
// state already arrived over the stream.
func (s *Submitter) SubmitAction(ctx context.Context, action table.ActionType, amount *int64) (*table.TableState, error) {
	var cred string
	if s.cfg.Credentials != nil {
		cred = s.cfg.Credentials.Credential()
	}
	if cred == "" {
		return nil, fmt.Errorf("%w: no session credential", ErrUnauthorized)
	}

	state := s.cfg.States.State()
	set, err := Derive(state, s.cfg.ViewerID)
	if err != nil {
		return nil, err
	}
	if err := validateAgainst(set, action, amount); err != nil {
		return nil, err
	}

	tableID := s.cfg.TableID
	if tableID == "" {
		tableID = state.TableID
	}
	req := Request{
		TableID:    tableID,
		ActionType: action,
		RequestID:  s.cfg.NewRequestID(),
	}
	if action.IsWager() {
		v := *amount
		req.Amount = &v
	}

	s.log.Debugf("Submitting %s (amount=%v) req=%s", action, amountString(req.Amount), req.RequestID)
	fresh, err := s.cfg.Endpoint.SubmitAction(ctx, cred, req)
	if err != nil {
		var rej *RejectedError
		if errors.As(err, &rej) {
			s.log.Infof("Server rejected %s: %s", action, rej.Detail)
		}
		return nil, err
	}
	if fresh == nil {
		return nil, nil
	}

	err = s.cfg.States.ApplySnapshot(fresh)
	switch {
	case errors.Is(err, table.ErrStaleSnapshot):
		s.log.Debugf("Action response seq=%d superseded by stream", fresh.Sequence)
	case err != nil:
		return fresh, fmt.Errorf("apply action response: %w", err)
	}
	return fresh, nil
}

func amountString(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
