package channel

import (
	"context"
	"net/http"

	"nhooyr.io/websocket"
)

// NhooyrDialer dials with nhooyr.io/websocket. Its reads and pings honour
// context cancellation natively.
type NhooyrDialer struct {
	// ReadLimit caps inbound message size. Default: 8MB.
	ReadLimit int64
}

// Dial implements Dialer.
func (d NhooyrDialer) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = 8 << 20
	}
	conn.SetReadLimit(limit)
	return &nhooyrTransport{conn: conn}, nil
}

type nhooyrTransport struct {
	conn *websocket.Conn
}

func (t *nhooyrTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *nhooyrTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}

func (t *nhooyrTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *nhooyrTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
