package channel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one established connection to the relay. Read is called
// from a single goroutine and Write from another; Ping may run
// concurrently with both. Ping needs a concurrent Read to observe the pong.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	// Ping sends a transport-level ping and blocks until the pong arrives or
	// ctx is done.
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Transport, error)
}

// ErrTransportClosed is returned by transport calls after Close.
var ErrTransportClosed = errors.New("channel: transport closed")

// GorillaDialer dials with gorilla/websocket. It is the default Dialer.
type GorillaDialer struct {
	// ReadLimit caps inbound message size. Default: 8MB.
	ReadLimit int64
}

// Dial implements Dialer.
func (d GorillaDialer) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	dialer := *websocket.DefaultDialer
	conn, resp, err := dialer.DialContext(ctx, url, header)
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

	t := &gorillaTransport{
		conn:   conn,
		pongs:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		select {
		case t.pongs <- struct{}{}:
		default:
		}
		return nil
	})
	return t, nil
}

type gorillaTransport struct {
	conn      *websocket.Conn
	pongs     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// Read blocks until a data message arrives. gorilla reads are not
// cancellable; Close unblocks a pending Read.
func (t *gorillaTransport) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.BinaryMessage || typ == websocket.TextMessage {
			return data, nil
		}
	}
}

func (t *gorillaTransport) Write(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
	} else {
		t.conn.SetWriteDeadline(time.Time{})
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *gorillaTransport) Ping(ctx context.Context) error {
	// Drop a pong left over from an earlier ping.
	select {
	case <-t.pongs:
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(MaxPingInterval)
	}
	if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return err
	}

	select {
	case <-t.pongs:
		return nil
	case <-t.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *gorillaTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = t.conn.Close()
	})
	return err
}
