package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vctt94/pokertablesync/pkg/actions"
	"github.com/vctt94/pokertablesync/pkg/table"
)

func TestDescribeActionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"below", &actions.ValidationError{Reason: actions.ReasonBelowMinimum}, "raise: amount out of range"},
		{"illegal", &actions.ValidationError{Reason: actions.ReasonNoLegalAction}, "raise is not available now"},
		{"unauthorized", fmt.Errorf("submit: %w", actions.ErrUnauthorized), "Session expired, reconnect with a new token"},
		{"rejected", &actions.RejectedError{Code: "FailedPrecondition", Detail: "not your turn"}, "Server rejected raise: not your turn"},
		{"other", errors.New("boom"), "raise failed: boom"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, describeActionError(table.ActionRaise, tc.err))
		})
	}
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░", progressBar(0, 4))
	assert.Equal(t, "██░░", progressBar(0.5, 4))
	assert.Equal(t, "████", progressBar(1.7, 4))
	assert.Equal(t, "░░░░", progressBar(-1, 4))
}
