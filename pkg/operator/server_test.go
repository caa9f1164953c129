package operator

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/pagewire/pkg/channel"
	"github.com/vango-dev/pagewire/pkg/router"
	"github.com/vango-dev/pagewire/pkg/session"
	"github.com/vango-dev/pagewire/pkg/ui"
)

type fakeChannel struct {
	state channel.State
	queue int
}

func (f fakeChannel) State() channel.State { return f.state }
func (f fakeChannel) QueueLen() int        { return f.queue }

func noop(context.Context, *ui.Builder) error { return nil }

func newTestServer(t *testing.T, ch ChannelStatus) (*Server, *router.Registry, *session.Store) {
	t.Helper()
	r := router.New()
	r.Page("/home", "Home", noop)
	r.Group("/admin").AccessGroups("admin").Page("/users", "Users", noop)

	store := session.NewStore(session.DefaultConfig(), nil)
	t.Cleanup(func() { _ = store.Shutdown(context.Background()) })

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "operator_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	srv := New(Config{
		Version:  "1.2.3",
		Gatherer: reg,
		Sessions: store,
		Registry: r.Registry(),
		Channel:  ch,
	})
	return srv, r.Registry(), store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, fakeChannel{state: channel.StateOpen, queue: 3})
	rec := get(t, srv.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp healthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" || resp.Queue != 3 || resp.Pages != 2 || resp.Version != "1.2.3" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Channel != channel.StateOpen.String() {
		t.Errorf("channel = %q", resp.Channel)
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, _, _ := newTestServer(t, fakeChannel{state: channel.StateConnecting})
	rec := get(t, srv.Handler(), "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp healthResponse
	decode(t, rec, &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec := get(t, srv.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "operator_test_total 1") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestMetrics_Disabled(t *testing.T) {
	srv := New(Config{})
	if rec := get(t, srv.Handler(), "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPages(t *testing.T) {
	srv, reg, _ := newTestServer(t, nil)

	var resp struct {
		Pages []pageView `json:"pages"`
	}
	decode(t, get(t, srv.Handler(), "/pages"), &resp)
	if len(resp.Pages) != 2 {
		t.Fatalf("pages = %+v", resp.Pages)
	}

	users, ok := reg.ByRoute("/admin/users")
	if !ok {
		t.Fatal("users page not registered")
	}
	rec := get(t, srv.Handler(), "/pages/"+users.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var page pageView
	decode(t, rec, &page)
	if page.Route != "/admin/users" || len(page.AccessGroups) != 1 || page.AccessGroups[0] != "admin" {
		t.Errorf("page = %+v", page)
	}

	if rec := get(t, srv.Handler(), "/pages/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing page status = %d", rec.Code)
	}
}

func TestSessions(t *testing.T) {
	srv, _, store := newTestServer(t, nil)
	ctx := context.Background()
	store.SetSession(ctx, session.New("s1", "p1"))
	store.SetSession(ctx, session.New("s2", "p1"))
	store.DisconnectSession(ctx, "s2")

	var resp struct {
		Stats    session.Stats  `json:"stats"`
		Sessions []session.Info `json:"sessions"`
	}
	decode(t, get(t, srv.Handler(), "/sessions"), &resp)
	if resp.Stats.Active != 1 || resp.Stats.Disconnected != 1 {
		t.Errorf("stats = %+v", resp.Stats)
	}
	if len(resp.Sessions) != 2 {
		t.Fatalf("sessions = %+v", resp.Sessions)
	}

	rec := get(t, srv.Handler(), "/sessions/s2")
	var info session.Info
	decode(t, rec, &info)
	if info.Status != "disconnected" || info.DisconnectedAt == nil {
		t.Errorf("info = %+v", info)
	}

	if rec := get(t, srv.Handler(), "/sessions/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d", rec.Code)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
