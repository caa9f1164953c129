package pagewire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/pagewire/internal/config"
	"github.com/vango-dev/pagewire/internal/errors"
	"github.com/vango-dev/pagewire/pkg/protocol"
	"github.com/vango-dev/pagewire/pkg/router"
	"github.com/vango-dev/pagewire/pkg/snapshot"
	"github.com/vango-dev/pagewire/pkg/ui"
)

// fakeRelay acknowledges InitializeHost and records everything else.
type fakeRelay struct {
	server *httptest.Server
	got    chan *protocol.Message

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	r := &fakeRelay{got: make(chan *protocol.Message, 64)}
	upgrader := websocket.Upgrader{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.DecodeMessage(data)
			if err != nil {
				continue
			}
			if _, ok := msg.Payload.(*protocol.InitializeHost); ok {
				r.mu.Lock()
				conn.WriteMessage(websocket.BinaryMessage, data)
				r.mu.Unlock()
			}
			r.got <- msg
		}
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func (r *fakeRelay) send(t *testing.T, p protocol.Payload) {
	t.Helper()
	data, err := protocol.EncodeMessage(&protocol.Message{Payload: p})
	if err != nil {
		t.Fatal(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatal(err)
	}
}

// next returns the next message of type T, skipping others.
func next[T protocol.Payload](t *testing.T, r *fakeRelay) T {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-r.got:
			if p, ok := m.Payload.(T); ok {
				return p
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func testConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.Relay.URL = url
	cfg.Relay.APIKey = "secret"
	cfg.Relay.ShutdownTimeout = config.Duration{Duration: time.Second}
	cfg.Operator.Listen = ""
	return cfg
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(nil)
	if errors.CodeOf(err) != errors.CodeInvalidEndpoint {
		t.Errorf("New(nil) = %v", err)
	}

	cfg := testConfig("ws://relay")
	cfg.Relay.APIKey = ""
	if _, err := New(cfg); errors.CodeOf(err) != errors.CodeMissingAPIKey {
		t.Errorf("New(no key) = %v", err)
	}
}

func TestNew_Wiring(t *testing.T) {
	cfg := testConfig("ws://relay")
	cfg.Operator.Listen = "127.0.0.1:0"
	cfg.Relay.Transport = config.TransportNhooyr

	app, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if app.Operator() == nil {
		t.Error("operator API not built")
	}
	if app.Channel().Config().InstanceID == "" {
		t.Error("instance id not generated")
	}
	if app.Runtime().Registry() != app.Router().Registry() {
		t.Error("runtime and router use different registries")
	}

	families, err := app.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "pagewire_session_active" {
			found = true
		}
	}
	if !found {
		t.Error("pagewire collectors not registered")
	}
}

func TestNew_SQLiteSnapshots(t *testing.T) {
	cfg := testConfig("ws://relay")
	cfg.Snapshot.Backend = config.BackendSQLite
	cfg.Snapshot.DSN = "file::memory:"

	app, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := app.snapshots.(*snapshot.SQLStore); !ok {
		t.Errorf("snapshots = %T", app.snapshots)
	}
	if err := app.closeStores(); err != nil {
		t.Error(err)
	}
}

func TestRun_RequiresPages(t *testing.T) {
	app, err := New(testConfig("ws://relay"))
	if err != nil {
		t.Fatal(err)
	}
	if err := app.Run(context.Background()); errors.CodeOf(err) != errors.CodeNoPages {
		t.Errorf("Run() = %v", err)
	}
}

func TestRun_ServesPages(t *testing.T) {
	relay := newFakeRelay(t)

	var mwCalls, rerunCalls int
	var mu sync.Mutex
	count := func(n *int) router.Middleware {
		return router.MiddlewareFunc(func(ctx context.Context, info router.RunInfo, next func(context.Context) error) error {
			mu.Lock()
			*n++
			mu.Unlock()
			return next(ctx)
		})
	}
	app, err := New(testConfig(relay.url()),
		WithPrometheusRegistry(prometheus.NewRegistry()),
		WithMiddleware(count(&mwCalls)),
		WithRunKindMiddleware(router.RunRerun, count(&rerunCalls)))
	if err != nil {
		t.Fatal(err)
	}
	app.Router().Page("/counter", "Counter", func(ctx context.Context, b *ui.Builder) error {
		b.Button("Add")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	host := next[*protocol.InitializeHost](t, relay)
	if host.APIKey != "secret" || host.SDKVersion != Version || len(host.Pages) != 1 {
		t.Fatalf("InitializeHost = %+v", host)
	}

	relay.send(t, &protocol.InitializeClient{SessionID: "s1", PageID: host.Pages[0].ID})
	rw := next[*protocol.RenderWidget](t, relay)
	if rw.SessionID != "s1" {
		t.Errorf("RenderWidget = %+v", rw)
	}
	fin := next[*protocol.ScriptFinished](t, relay)
	if fin.Status != protocol.StatusSuccess {
		t.Errorf("ScriptFinished = %+v", fin)
	}

	relay.send(t, &protocol.RerunPage{SessionID: "s1", PageID: host.Pages[0].ID})
	if fin := next[*protocol.ScriptFinished](t, relay); fin.Status != protocol.StatusSuccess {
		t.Errorf("rerun ScriptFinished = %+v", fin)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	if mwCalls != 2 {
		t.Errorf("middleware calls = %d, want 2", mwCalls)
	}
	if rerunCalls != 1 {
		t.Errorf("rerun-only middleware calls = %d, want 1", rerunCalls)
	}
	if err := app.Run(context.Background()); errors.CodeOf(err) != errors.CodeInvalidConfig {
		t.Errorf("second Run() = %v", err)
	}
}
