package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vctt94/pokertablesync/pkg/table"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// SubmitActionMethod is the full gRPC method name of the action endpoint.
	SubmitActionMethod = "/tablesync.v1.ActionService/SubmitAction"

	// SessionTokenKey is the metadata key carrying the session credential.
	SessionTokenKey = "x-session-token"
)

// GRPCEndpoint submits actions over a unary gRPC call. Requests and
// responses are google.protobuf.Struct values holding the same JSON shapes
// used on the stream.
type GRPCEndpoint struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

// NewGRPCEndpoint wraps conn. A zero timeout leaves the caller's deadline
// untouched.
func NewGRPCEndpoint(conn grpc.ClientConnInterface, timeout time.Duration) *GRPCEndpoint {
	return &GRPCEndpoint{conn: conn, timeout: timeout}
}

// actionResponse is the decoded response body. Exactly one of the fields is
// set.
type actionResponse struct {
	State *table.TableState `json:"state"`
	Error *struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"error"`
}

// SubmitAction implements Endpoint.
func (e *GRPCEndpoint) SubmitAction(ctx context.Context, credential string, req Request) (*table.TableState, error) {
	fields := map[string]interface{}{
		"table_id":    req.TableID,
		"action_type": string(req.ActionType),
		"request_id":  req.RequestID,
	}
	if req.Amount != nil {
		fields["amount"] = *req.Amount
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode action request: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, SessionTokenKey, credential)

	out := new(structpb.Struct)
	if err := e.conn.Invoke(ctx, SubmitActionMethod, in, out); err != nil {
		return nil, statusError(err)
	}

	b, err := json.Marshal(out.AsMap())
	if err != nil {
		return nil, fmt.Errorf("re-encode action response: %w", err)
	}
	var resp actionResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("decode action response: %w", err)
	}
	if resp.Error != nil {
		return nil, &RejectedError{Code: resp.Error.Code, Detail: resp.Error.Detail}
	}
	return resp.State, nil
}

// statusError maps a gRPC status to the package error kinds.
func statusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &TransientError{Err: err}
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return &RejectedError{Code: st.Code().String(), Detail: st.Message()}
	default:
		return &TransientError{Err: err}
	}
}
