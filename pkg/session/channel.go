package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/vctt94/pokertablesync/pkg/table"
)

// SessionTokenHeader carries the session credential on the websocket
// upgrade request.
const SessionTokenHeader = "X-Session-Token"

// SessionContext supplies the identity of the session. It replaces any
// ambient host object and is injected at construction.
type SessionContext interface {
	TableID() string
	ViewerID() string
	Credential() string
}

// StaticSession is a SessionContext with fixed values.
type StaticSession struct {
	Table  string
	Viewer string
	Token  string
}

func (s StaticSession) TableID() string    { return s.Table }
func (s StaticSession) ViewerID() string   { return s.Viewer }
func (s StaticSession) Credential() string { return s.Token }

// Channel is a reliable message-oriented duplex channel. Read is only
// called from one goroutine; Write may be called concurrently.
type Channel interface {
	Read(ctx context.Context) (table.Message, error)
	Write(ctx context.Context, msg table.Message) error
	Close() error
}

// Dialer opens a channel for a session.
type Dialer interface {
	Dial(ctx context.Context, sess SessionContext) (Channel, error)
}

// WSDialer dials a websocket endpoint.
type WSDialer struct {
	URL        string
	HTTPClient *http.Client
	// ReadLimit overrides the default 32KiB message limit when positive.
	ReadLimit int64
}

// Dial implements Dialer.
func (d *WSDialer) Dial(ctx context.Context, sess SessionContext) (Channel, error) {
	hdr := http.Header{}
	if cred := sess.Credential(); cred != "" {
		hdr.Set(SessionTokenHeader, cred)
	}
	conn, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: hdr,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = 1 << 20
	}
	conn.SetReadLimit(limit)
	return &wsChannel{conn: conn}, nil
}

type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) Read(ctx context.Context) (table.Message, error) {
	var msg table.Message
	err := wsjson.Read(ctx, c.conn, &msg)
	return msg, err
}

func (c *wsChannel) Write(ctx context.Context, msg table.Message) error {
	return wsjson.Write(ctx, c.conn, msg)
}

func (c *wsChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
