package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/vango-dev/pagewire/internal/errors"
	"github.com/vango-dev/pagewire/pkg/channel"
	"github.com/vango-dev/pagewire/pkg/protocol"
	"github.com/vango-dev/pagewire/pkg/router"
	"github.com/vango-dev/pagewire/pkg/session"
	"github.com/vango-dev/pagewire/pkg/ui"
	"github.com/vango-dev/pagewire/pkg/widget"
)

// DefaultSDKName is announced in InitializeHost when Config.SDKName is empty.
const DefaultSDKName = "pagewire-go"

// Channel is the part of *channel.Client the runtime uses.
type Channel interface {
	Enqueue(id string, payload protocol.Payload) error
	EnqueueWithResponse(ctx context.Context, id string, payload protocol.Payload) (*protocol.Message, error)
	RegisterHandler(h channel.Handler)
	OnReconnected(fn func())
}

// Config configures a Runtime.
type Config struct {
	APIKey     string
	SDKName    string
	SDKVersion string

	// Middleware wraps every page run, outside any router middleware.
	Middleware []router.Middleware
}

// Runtime executes pages in response to relay messages. It owns no
// connection or storage itself: the channel, session store and page
// registry are handed in.
type Runtime struct {
	cfg      Config
	ch       Channel
	sessions *session.Store
	registry *router.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	workers map[string]*worker
	stopped bool
	wg      sync.WaitGroup
}

// worker is the serial queue of one session's inbound messages.
type worker struct {
	pending []*protocol.Message
}

// New creates a runtime.
func New(ch Channel, sessions *session.Store, registry *router.Registry, cfg Config, logger *slog.Logger) *Runtime {
	if cfg.SDKName == "" {
		cfg.SDKName = DefaultSDKName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		cfg:      cfg,
		ch:       ch,
		sessions: sessions,
		registry: registry,
		logger:   logger.With("component", "runtime"),
		ctx:      context.Background(),
		workers:  make(map[string]*worker),
	}
}

// Sessions returns the session store.
func (rt *Runtime) Sessions() *session.Store { return rt.sessions }

// Registry returns the page registry.
func (rt *Runtime) Registry() *router.Registry { return rt.registry }

// Run registers the runtime as the channel's message handler, announces
// the page catalogue and dispatches until ctx is done. The catalogue is
// announced again after every reconnect. On return, in-flight page runs
// have finished.
func (rt *Runtime) Run(ctx context.Context) error {
	if rt.registry.Len() == 0 {
		return errors.New(errors.CodeNoPages)
	}

	rt.mu.Lock()
	rt.ctx = ctx
	rt.stopped = false
	rt.mu.Unlock()

	rt.ch.RegisterHandler(rt.Handle)
	rt.ch.OnReconnected(func() {
		if ctx.Err() == nil {
			go rt.announce(ctx)
		}
	})
	rt.announce(ctx)

	<-ctx.Done()

	rt.mu.Lock()
	rt.stopped = true
	rt.mu.Unlock()
	rt.wg.Wait()
	return nil
}

// announce sends InitializeHost and waits for the relay's ack.
func (rt *Runtime) announce(ctx context.Context) {
	pages := rt.registry.Catalogue()
	_, err := rt.ch.EnqueueWithResponse(ctx, "", &protocol.InitializeHost{
		APIKey:     rt.cfg.APIKey,
		SDKName:    rt.cfg.SDKName,
		SDKVersion: rt.cfg.SDKVersion,
		Pages:      pages,
	})
	if err != nil {
		if ctx.Err() == nil {
			rt.logger.Warn("page catalogue not acknowledged", "pages", len(pages), "error", err)
		}
		return
	}
	rt.logger.Info("page catalogue registered", "pages", len(pages))
}

// Handle queues msg on its session's serial queue. Messages for one
// session run one at a time in arrival order; different sessions run
// concurrently. It never blocks on page execution.
func (rt *Runtime) Handle(msg *protocol.Message) {
	id := sessionOf(msg.Payload)
	if id == "" {
		rt.logger.Warn("dropping message without session",
			"type", msg.Payload.Type(),
			"message_id", msg.ID)
		return
	}

	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		rt.logger.Debug("dropping message after shutdown", "session_id", id)
		return
	}
	w, running := rt.workers[id]
	if !running {
		w = &worker{}
		rt.workers[id] = w
	}
	w.pending = append(w.pending, msg)
	ctx := rt.ctx
	if !running {
		rt.wg.Add(1)
		go rt.work(ctx, id, w)
	}
	rt.mu.Unlock()
}

// work drains one session's queue and exits when it is empty.
func (rt *Runtime) work(ctx context.Context, id string, w *worker) {
	defer rt.wg.Done()
	for {
		rt.mu.Lock()
		if len(w.pending) == 0 {
			delete(rt.workers, id)
			rt.mu.Unlock()
			return
		}
		msg := w.pending[0]
		w.pending[0] = nil
		w.pending = w.pending[1:]
		rt.mu.Unlock()

		rt.dispatch(ctx, msg)
	}
}

func (rt *Runtime) dispatch(ctx context.Context, msg *protocol.Message) {
	var err error
	switch p := msg.Payload.(type) {
	case *protocol.InitializeClient:
		err = rt.InitializeClient(ctx, p.SessionID, p.PageID)
	case *protocol.RerunPage:
		err = rt.RerunPage(ctx, p.SessionID, p.PageID, p.States)
	case *protocol.CloseSession:
		err = rt.CloseSession(ctx, p.SessionID)
	default:
		err = errors.New(errors.CodeUnknownPayload).Wrap(fmt.Errorf("unexpected inbound %s", msg.Payload.Type()))
	}
	if err != nil {
		rt.report(sessionOf(msg.Payload), err)
	}
}

// InitializeClient starts a session on a page, restoring state for a
// recently disconnected session with the same id, and runs the page.
func (rt *Runtime) InitializeClient(ctx context.Context, sessionID, pageID string) error {
	page, ok := rt.registry.Lookup(pageID)
	if !ok {
		return errors.New(errors.CodePageNotFound).Wrap(fmt.Errorf("page %q", pageID))
	}

	s := session.New(sessionID, pageID)
	restored := rt.sessions.SetSession(ctx, s)
	rt.logger.Debug("client initialized",
		"session_id", sessionID,
		"page_id", pageID,
		"restored", restored)

	err := rt.runPage(ctx, s, page, router.RunInitialize)
	rt.finish(sessionID, err)
	return err
}

// RerunPage applies submitted widget states to a session and reruns its
// page. Every state is decoded before anything is changed, so a bad state
// leaves the session untouched. Switching pages discards the old page's
// widget state first.
func (rt *Runtime) RerunPage(ctx context.Context, sessionID, pageID string, states []protocol.WidgetState) error {
	s, ok := rt.sessions.GetSession(sessionID)
	if !ok {
		return errors.New(errors.CodeSessionNotFound).Wrap(fmt.Errorf("session %q", sessionID))
	}
	page, ok := rt.registry.Lookup(pageID)
	if !ok {
		return errors.New(errors.CodePageNotFound).Wrap(fmt.Errorf("page %q", pageID))
	}
	decoded, err := widget.DecodeAll(states)
	if err != nil {
		return errors.New(errors.CodeBadWidgetState).Wrap(err)
	}

	if s.PageID() != pageID {
		s.State.ResetStates()
		s.SetPageID(pageID)
	}
	s.State.SetStates(decoded)

	err = rt.runPage(ctx, s, page, router.RunRerun)
	if err == nil {
		s.State.ResetButtons()
	}
	rt.finish(sessionID, err)
	return err
}

// CloseSession moves a session to the disconnected cache, from which a
// returning client can resume it.
func (rt *Runtime) CloseSession(ctx context.Context, sessionID string) error {
	if !rt.sessions.DisconnectSession(ctx, sessionID) {
		rt.logger.Debug("close for unknown session", "session_id", sessionID)
	}
	return nil
}

// runPage executes the page handler through the middleware chain.
func (rt *Runtime) runPage(ctx context.Context, s *session.Session, page *router.Page, kind router.RunKind) error {
	info := router.RunInfo{Kind: kind, SessionID: s.ID, Page: page}
	mw := append(append([]router.Middleware(nil), rt.cfg.Middleware...), page.Middleware()...)

	return router.ComposeMiddleware(ctx, info, mw, func(ctx context.Context) error {
		b := ui.New(ctx, s.ID, page.ID, s.State, ui.EmitterFunc(rt.emit))
		if err := rt.invoke(ctx, page, b); err != nil {
			return err
		}
		if err := b.Err(); err != nil {
			return errors.New(errors.CodeRenderFailed).Wrap(err)
		}
		return nil
	})
}

// invoke calls the handler, turning a panic into an error with its stack.
func (rt *Runtime) invoke(ctx context.Context, page *router.Page, b *ui.Builder) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			rt.logger.Error("page handler panic",
				"panic", r,
				"session_id", b.SessionID(),
				"page_id", page.ID,
				"stack", string(stack))
			err = errors.New(errors.CodeHandlerPanicked).
				Wrap(fmt.Errorf("%v", r)).
				WithStack(stack)
		}
	}()

	if err := page.Handler(ctx, b); err != nil {
		return errors.FromError(err, errors.CodeHandlerFailed)
	}
	return nil
}

func (rt *Runtime) emit(_ context.Context, rw *protocol.RenderWidget) error {
	return rt.ch.Enqueue("", rw)
}

// finish reports the outcome of a page run.
func (rt *Runtime) finish(sessionID string, runErr error) {
	status := protocol.StatusSuccess
	if runErr != nil {
		status = protocol.StatusFailure
	}
	err := rt.ch.Enqueue("", &protocol.ScriptFinished{SessionID: sessionID, Status: status})
	if err != nil {
		rt.logger.Warn("could not queue script finished",
			"session_id", sessionID,
			"status", status,
			"error", err)
	}
}

// report sends an Exception for a failed message upstream.
func (rt *Runtime) report(sessionID string, err error) {
	ex := exceptionFor(sessionID, err)

	attrs := []any{"session_id", sessionID, "category", errors.CategoryOf(err), "error", err}
	if errors.CategoryOf(err) == errors.CategoryApplication {
		rt.logger.Warn("page run failed", attrs...)
	} else {
		rt.logger.Warn("message rejected", attrs...)
	}

	if err := rt.ch.Enqueue("", ex); err != nil {
		rt.logger.Warn("could not queue exception", "session_id", sessionID, "error", err)
	}
}

func exceptionFor(sessionID string, err error) *protocol.Exception {
	ex := &protocol.Exception{
		SessionID: sessionID,
		Title:     "Error",
		Message:   err.Error(),
	}
	if e, ok := errors.As(err); ok {
		ex.Title = e.Message
		if e.Wrapped != nil {
			ex.Message = e.Wrapped.Error()
		} else {
			ex.Message = e.Detail
		}
		ex.StackTrace = string(e.Stack)
	}
	return ex
}

// sessionOf returns the session id a payload addresses.
func sessionOf(p protocol.Payload) string {
	switch p := p.(type) {
	case *protocol.InitializeClient:
		return p.SessionID
	case *protocol.RerunPage:
		return p.SessionID
	case *protocol.CloseSession:
		return p.SessionID
	case *protocol.RenderWidget:
		return p.SessionID
	case *protocol.ScriptFinished:
		return p.SessionID
	case *protocol.Exception:
		return p.SessionID
	default:
		return ""
	}
}
