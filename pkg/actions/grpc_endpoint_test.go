package actions

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vctt94/pokertablesync/pkg/table"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type capturedCall struct {
	method string
	token  []string
	req    map[string]interface{}
}

// startActionServer runs a gRPC server that answers every call with reply.
func startActionServer(t *testing.T, reply func(req map[string]interface{}) (*structpb.Struct, error)) (*GRPCEndpoint, *capturedCall) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	got := &capturedCall{}

	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ interface{}, stream grpc.ServerStream) error {
		got.method, _ = grpc.MethodFromServerStream(stream)
		md, _ := metadata.FromIncomingContext(stream.Context())
		got.token = md.Get(SessionTokenKey)

		in := new(structpb.Struct)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		got.req = in.AsMap()
		out, err := reply(got.req)
		if err != nil {
			return err
		}
		return stream.SendMsg(out)
	}))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewGRPCEndpoint(conn, 0), got
}

func stateStruct(t *testing.T, st *table.TableState) *structpb.Struct {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{"state": st})
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestGRPCEndpoint_Success(t *testing.T) {
	fresh := facingBet()
	fresh.Sequence = 8
	fresh.HoleCards = []table.Card{table.NewCard(table.Spades, table.Ace), table.NewCard(table.Clubs, table.Ten)}

	ep, got := startActionServer(t, func(map[string]interface{}) (*structpb.Struct, error) {
		return stateStruct(t, fresh), nil
	})

	st, err := ep.SubmitAction(context.Background(), "tok", Request{
		TableID: "t1", ActionType: table.ActionRaise, Amount: amt(200), RequestID: "r1",
	})
	require.NoError(t, err)

	assert.Equal(t, SubmitActionMethod, got.method)
	assert.Equal(t, []string{"tok"}, got.token)
	assert.Equal(t, "raise", got.req["action_type"])
	assert.Equal(t, float64(200), got.req["amount"])
	assert.Equal(t, "r1", got.req["request_id"])

	require.NotNil(t, st)
	assert.Equal(t, uint64(8), st.Sequence)
	assert.Equal(t, fresh.HoleCards, st.HoleCards)
	assert.Equal(t, int64(490), st.Seats[0].Stack)
}

func TestGRPCEndpoint_ErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		reply func(map[string]interface{}) (*structpb.Struct, error)
		check func(t *testing.T, err error)
	}{{
		name: "unauthenticated",
		reply: func(map[string]interface{}) (*structpb.Struct, error) {
			return nil, status.Error(codes.Unauthenticated, "bad token")
		},
		check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnauthorized) },
	}, {
		name: "rejected by status",
		reply: func(map[string]interface{}) (*structpb.Struct, error) {
			return nil, status.Error(codes.FailedPrecondition, "not your turn")
		},
		check: func(t *testing.T, err error) {
			var rej *RejectedError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, "not your turn", rej.Detail)
		},
	}, {
		name: "rejected by payload",
		reply: func(map[string]interface{}) (*structpb.Struct, error) {
			return structpb.NewStruct(map[string]interface{}{
				"error": map[string]interface{}{"code": "min_raise", "detail": "raise too small"},
			})
		},
		check: func(t *testing.T, err error) {
			var rej *RejectedError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, "min_raise", rej.Code)
			assert.Equal(t, "raise too small", rej.Detail)
		},
	}, {
		name: "transient",
		reply: func(map[string]interface{}) (*structpb.Struct, error) {
			return nil, status.Error(codes.Unavailable, "draining")
		},
		check: func(t *testing.T, err error) {
			var te *TransientError
			require.ErrorAs(t, err, &te)
		},
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ep, _ := startActionServer(t, tc.reply)
			_, err := ep.SubmitAction(context.Background(), "tok", Request{
				TableID: "t1", ActionType: table.ActionFold, RequestID: "r1",
			})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}
