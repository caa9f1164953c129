package runtime

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/pagewire/internal/errors"
	"github.com/vango-dev/pagewire/pkg/channel"
	"github.com/vango-dev/pagewire/pkg/ident"
	"github.com/vango-dev/pagewire/pkg/protocol"
	"github.com/vango-dev/pagewire/pkg/router"
	"github.com/vango-dev/pagewire/pkg/session"
	"github.com/vango-dev/pagewire/pkg/ui"
	"github.com/vango-dev/pagewire/pkg/widget"
)

// fakeChannel records outbound payloads and acks correlated requests.
type fakeChannel struct {
	mu          sync.Mutex
	sent        []protocol.Payload
	handler     channel.Handler
	reconnected []func()
	announced   chan *protocol.InitializeHost
	ackErr      error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{announced: make(chan *protocol.InitializeHost, 4)}
}

func (f *fakeChannel) Enqueue(_ string, p protocol.Payload) error {
	f.mu.Lock()
	f.sent = append(f.sent, p)
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) EnqueueWithResponse(_ context.Context, id string, p protocol.Payload) (*protocol.Message, error) {
	if ih, ok := p.(*protocol.InitializeHost); ok {
		f.announced <- ih
	}
	if f.ackErr != nil {
		return nil, f.ackErr
	}
	return &protocol.Message{ID: id, Payload: p}, nil
}

func (f *fakeChannel) RegisterHandler(h channel.Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeChannel) OnReconnected(fn func()) {
	f.mu.Lock()
	f.reconnected = append(f.reconnected, fn)
	f.mu.Unlock()
}

func (f *fakeChannel) take() []protocol.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

func finished(t *testing.T, sent []protocol.Payload) *protocol.ScriptFinished {
	t.Helper()
	for _, p := range sent {
		if sf, ok := p.(*protocol.ScriptFinished); ok {
			return sf
		}
	}
	t.Fatal("no ScriptFinished sent")
	return nil
}

func exception(sent []protocol.Payload) *protocol.Exception {
	for _, p := range sent {
		if ex, ok := p.(*protocol.Exception); ok {
			return ex
		}
	}
	return nil
}

type fixture struct {
	rt       *Runtime
	ch       *fakeChannel
	sessions *session.Store
	r        *router.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ch := newFakeChannel()
	sessions := session.NewStore(session.Config{}, nil)
	t.Cleanup(func() { sessions.Shutdown(context.Background()) })
	r := router.New()
	return &fixture{
		rt:       New(ch, sessions, r.Registry(), Config{APIKey: "key", SDKVersion: "1.2.3"}, nil),
		ch:       ch,
		sessions: sessions,
		r:        r,
	}
}

func counterPage(clicks *int) router.Handler {
	return func(ctx context.Context, b *ui.Builder) error {
		if b.Button("Increment") {
			*clicks++
		}
		b.Text("count")
		return nil
	}
}

func TestInitializeClient(t *testing.T) {
	f := newFixture(t)
	var clicks int
	f.r.Page("/counter", "Counter", counterPage(&clicks))
	pageID := ident.PageID("/counter")

	if err := f.rt.InitializeClient(context.Background(), "s1", pageID); err != nil {
		t.Fatal(err)
	}

	sent := f.ch.take()
	if len(sent) != 3 {
		t.Fatalf("sent %d messages, want 2 renders + ScriptFinished", len(sent))
	}
	rw, ok := sent[0].(*protocol.RenderWidget)
	if !ok || rw.SessionID != "s1" || rw.PageID != pageID || rw.Widget.Kind != uint8(widget.KindButton) {
		t.Fatalf("first message = %#v", sent[0])
	}
	if sf := sent[2].(*protocol.ScriptFinished); sf.Status != protocol.StatusSuccess {
		t.Errorf("status = %v", sf.Status)
	}
	if _, ok := f.sessions.GetSession("s1"); !ok {
		t.Error("session not active")
	}
}

func TestInitializeClient_PageNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.rt.InitializeClient(context.Background(), "s1", "missing")
	if errors.CodeOf(err) != errors.CodePageNotFound {
		t.Fatalf("err = %v, want page not found", err)
	}
	if _, ok := f.sessions.GetSession("s1"); ok {
		t.Error("session created for unknown page")
	}
	if len(f.ch.take()) != 0 {
		t.Error("nothing should be sent for an unknown page")
	}
}

func TestRerunPage_ClickAndEdgeReset(t *testing.T) {
	f := newFixture(t)
	var clicks int
	f.r.Page("/counter", "Counter", counterPage(&clicks))
	pageID := ident.PageID("/counter")
	ctx := context.Background()

	if err := f.rt.InitializeClient(ctx, "s1", pageID); err != nil {
		t.Fatal(err)
	}
	f.ch.take()

	btnID := ident.WidgetID(pageID, widget.KindButton.String(), []int{0})
	ws, err := widget.Encode(&widget.ButtonState{ID: btnID, Label: "Increment", Clicked: true})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.rt.RerunPage(ctx, "s1", pageID, []protocol.WidgetState{ws}); err != nil {
		t.Fatal(err)
	}
	if clicks != 1 {
		t.Fatalf("clicks = %d, want 1", clicks)
	}
	if sf := finished(t, f.ch.take()); sf.Status != protocol.StatusSuccess {
		t.Errorf("status = %v", sf.Status)
	}

	s, _ := f.sessions.GetSession("s1")
	btn, ok := s.State.Button(btnID)
	if !ok || btn.Clicked {
		t.Fatalf("button after rerun = %+v, %v; want clicked reset", btn, ok)
	}

	// A rerun without a click does not count again.
	if err := f.rt.RerunPage(ctx, "s1", pageID, nil); err != nil {
		t.Fatal(err)
	}
	if clicks != 1 {
		t.Errorf("clicks = %d after idle rerun", clicks)
	}
}

func TestRerunPage_SessionNotFound(t *testing.T) {
	f := newFixture(t)
	f.r.Page("/a", "A", func(context.Context, *ui.Builder) error { return nil })

	err := f.rt.RerunPage(context.Background(), "ghost", ident.PageID("/a"), nil)
	if errors.CodeOf(err) != errors.CodeSessionNotFound {
		t.Fatalf("err = %v, want session not found", err)
	}
}

func TestRerunPage_BadStateCommitsNothing(t *testing.T) {
	f := newFixture(t)
	f.r.Page("/form", "Form", func(_ context.Context, b *ui.Builder) error {
		b.TextInput("Name")
		return nil
	})
	pageID := ident.PageID("/form")
	ctx := context.Background()
	f.rt.InitializeClient(ctx, "s1", pageID)
	f.ch.take()

	inputID := ident.WidgetID(pageID, widget.KindTextInput.String(), []int{0})
	good, _ := widget.Encode(&widget.TextInputState{ID: inputID, Value: "changed"})
	bad := protocol.WidgetState{ID: "x", Kind: 200}

	err := f.rt.RerunPage(ctx, "s1", pageID, []protocol.WidgetState{good, bad})
	if errors.CodeOf(err) != errors.CodeBadWidgetState {
		t.Fatalf("err = %v, want bad widget state", err)
	}
	if !stderrors.Is(err, widget.ErrUnknownKind) {
		t.Errorf("err should wrap ErrUnknownKind: %v", err)
	}

	s, _ := f.sessions.GetSession("s1")
	if in, _ := s.State.TextInput(inputID); in.Value == "changed" {
		t.Error("state from a rejected rerun was committed")
	}
}

func TestRerunPage_PageChangeResetsState(t *testing.T) {
	f := newFixture(t)
	empty := func(_ context.Context, b *ui.Builder) error { b.Checkbox("Agree"); return nil }
	f.r.Page("/one", "One", empty)
	f.r.Page("/two", "Two", func(context.Context, *ui.Builder) error { return nil })
	ctx := context.Background()

	f.rt.InitializeClient(ctx, "s1", ident.PageID("/one"))
	s, _ := f.sessions.GetSession("s1")
	if s.State.Len() != 1 {
		t.Fatalf("state len = %d", s.State.Len())
	}

	if err := f.rt.RerunPage(ctx, "s1", ident.PageID("/two"), nil); err != nil {
		t.Fatal(err)
	}
	if s.State.Len() != 0 {
		t.Errorf("state len = %d after page change, want 0", s.State.Len())
	}
	if s.PageID() != ident.PageID("/two") {
		t.Errorf("session page = %q", s.PageID())
	}
}

func TestRerunPage_ListingDuringPageSwitches(t *testing.T) {
	f := newFixture(t)
	noop := func(context.Context, *ui.Builder) error { return nil }
	f.r.Page("/a", "A", noop)
	f.r.Page("/b", "B", noop)
	ctx := context.Background()
	if err := f.rt.InitializeClient(ctx, "s1", ident.PageID("/a")); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	listed := make(chan struct{})
	go func() {
		defer close(listed)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, info := range f.sessions.Sessions() {
				if info.PageID != ident.PageID("/a") && info.PageID != ident.PageID("/b") {
					t.Errorf("listed page = %q", info.PageID)
				}
			}
		}
	}()

	pages := []string{ident.PageID("/b"), ident.PageID("/a")}
	for i := 0; i < 500; i++ {
		if err := f.rt.RerunPage(ctx, "s1", pages[i%2], nil); err != nil {
			t.Errorf("rerun %d: %v", i, err)
			break
		}
	}
	close(stop)
	<-listed

	s, _ := f.sessions.GetSession("s1")
	if got := s.PageID(); got != ident.PageID("/a") {
		t.Errorf("final page = %q", got)
	}
}

func TestHandlerFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	boom := stderrors.New("database unavailable")
	f.r.Page("/fail", "Fail", func(context.Context, *ui.Builder) error { return boom })
	pageID := ident.PageID("/fail")

	f.rt.Handle(&protocol.Message{Payload: &protocol.InitializeClient{SessionID: "s1", PageID: pageID}})
	f.rt.wg.Wait()

	sent := f.ch.take()
	if sf := finished(t, sent); sf.Status != protocol.StatusFailure {
		t.Errorf("status = %v, want FAILURE", sf.Status)
	}
	ex := exception(sent)
	if ex == nil {
		t.Fatal("no Exception sent")
	}
	if ex.Title != "Page handler failed" || ex.Message != "database unavailable" {
		t.Errorf("exception = %+v", ex)
	}
	if _, ok := f.sessions.GetSession("s1"); !ok {
		t.Error("session should survive a handler failure")
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	f := newFixture(t)
	f.r.Page("/panic", "Panic", func(context.Context, *ui.Builder) error { panic("nil map write") })

	f.rt.Handle(&protocol.Message{Payload: &protocol.InitializeClient{SessionID: "s1", PageID: ident.PageID("/panic")}})
	f.rt.wg.Wait()

	ex := exception(f.ch.take())
	if ex == nil {
		t.Fatal("no Exception sent")
	}
	if ex.Title != "Page handler panicked" || ex.Message != "nil map write" {
		t.Errorf("exception = %+v", ex)
	}
	if !strings.Contains(ex.StackTrace, "goroutine") {
		t.Errorf("stack trace missing: %q", ex.StackTrace)
	}
}

func TestDispatchRejectsUnknownSession(t *testing.T) {
	f := newFixture(t)
	f.r.Page("/a", "A", func(context.Context, *ui.Builder) error { return nil })

	f.rt.Handle(&protocol.Message{Payload: &protocol.RerunPage{SessionID: "nope", PageID: ident.PageID("/a")}})
	f.rt.wg.Wait()

	sent := f.ch.take()
	if len(sent) != 1 {
		t.Fatalf("sent %v, want only an Exception", sent)
	}
	if ex := exception(sent); ex == nil || ex.Title != "Session not found" {
		t.Errorf("exception = %+v", ex)
	}
}

func TestCloseSessionAllowsResume(t *testing.T) {
	f := newFixture(t)
	f.r.Page("/form", "Form", func(_ context.Context, b *ui.Builder) error {
		b.TextInput("Name")
		return nil
	})
	pageID := ident.PageID("/form")
	ctx := context.Background()

	f.rt.InitializeClient(ctx, "s1", pageID)
	inputID := ident.WidgetID(pageID, widget.KindTextInput.String(), []int{0})
	ws, _ := widget.Encode(&widget.TextInputState{ID: inputID, Value: "Ada"})
	if err := f.rt.RerunPage(ctx, "s1", pageID, []protocol.WidgetState{ws}); err != nil {
		t.Fatal(err)
	}

	f.rt.CloseSession(ctx, "s1")
	if !f.sessions.IsDisconnected("s1") {
		t.Fatal("session not parked")
	}

	if err := f.rt.InitializeClient(ctx, "s1", pageID); err != nil {
		t.Fatal(err)
	}
	s, _ := f.sessions.GetSession("s1")
	if in, ok := s.State.TextInput(inputID); !ok || in.Value != "Ada" {
		t.Errorf("resumed input = %+v, %v", in, ok)
	}
}

func TestSameSessionIsSerial(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	running, maxRunning, runs := 0, 0, 0
	f.r.Page("/slow", "Slow", func(context.Context, *ui.Builder) error {
		mu.Lock()
		running++
		runs++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return nil
	})
	pageID := ident.PageID("/slow")

	f.rt.InitializeClient(context.Background(), "s1", pageID)
	for i := 0; i < 5; i++ {
		f.rt.Handle(&protocol.Message{Payload: &protocol.RerunPage{SessionID: "s1", PageID: pageID}})
	}
	f.rt.wg.Wait()

	if maxRunning != 1 {
		t.Errorf("max concurrent runs for one session = %d, want 1", maxRunning)
	}
	if runs != 6 {
		t.Errorf("runs = %d, want 6", runs)
	}
}

func TestRunAnnouncesCatalogue(t *testing.T) {
	f := newFixture(t)
	f.r.Page("/a", "A", func(context.Context, *ui.Builder) error { return nil })
	f.r.Group("/admin").AccessGroups("admin").Page("/b", "B", func(context.Context, *ui.Builder) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.rt.Run(ctx) }()

	var ih *protocol.InitializeHost
	select {
	case ih = <-f.ch.announced:
	case <-time.After(5 * time.Second):
		t.Fatal("catalogue not announced")
	}
	if ih.APIKey != "key" || ih.SDKName != DefaultSDKName || ih.SDKVersion != "1.2.3" {
		t.Errorf("host info = %+v", ih)
	}
	if len(ih.Pages) != 2 || ih.Pages[1].Route != "/admin/b" || ih.Pages[1].AccessGroups[0] != "admin" {
		t.Errorf("pages = %+v", ih.Pages)
	}

	// Reconnect triggers a second announcement.
	f.ch.mu.Lock()
	hooks := f.ch.reconnected
	f.ch.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	select {
	case <-f.ch.announced:
	case <-time.After(5 * time.Second):
		t.Fatal("catalogue not re-announced after reconnect")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func TestRunRequiresPages(t *testing.T) {
	f := newFixture(t)
	err := f.rt.Run(context.Background())
	if errors.CodeOf(err) != errors.CodeNoPages {
		t.Fatalf("err = %v", err)
	}
}

func TestMiddlewareWrapsRuns(t *testing.T) {
	ch := newFakeChannel()
	sessions := session.NewStore(session.Config{}, nil)
	defer sessions.Shutdown(context.Background())

	var order []string
	mark := func(name string) router.Middleware {
		return router.MiddlewareFunc(func(ctx context.Context, info router.RunInfo, next func(context.Context) error) error {
			order = append(order, name+":"+string(info.Kind))
			return next(ctx)
		})
	}

	r := router.New()
	r.Use(mark("router"))
	r.Page("/a", "A", func(context.Context, *ui.Builder) error {
		order = append(order, "handler")
		return nil
	})
	rt := New(ch, sessions, r.Registry(), Config{Middleware: []router.Middleware{mark("global")}}, nil)

	if err := rt.InitializeClient(context.Background(), "s1", ident.PageID("/a")); err != nil {
		t.Fatal(err)
	}
	want := "global:initialize,router:initialize,handler"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}
