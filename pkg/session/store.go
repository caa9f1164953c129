package session

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/pagewire/pkg/snapshot"
)

// Config configures the session store.
type Config struct {
	// MaxDisconnected is the capacity of the disconnected cache. When full,
	// the single oldest entry is evicted to make room.
	// Default: 128.
	MaxDisconnected int

	// Retention is how long a disconnected session stays resumable. The
	// window starts at disconnect and is not extended by later activity.
	// Default: 2 minutes.
	Retention time.Duration

	// Snapshots optionally persists disconnected sessions so they can be
	// restored after cache eviction or a process restart.
	Snapshots snapshot.Store

	// SnapshotTimeout bounds each snapshot store call.
	// Default: 5 seconds.
	SnapshotTimeout time.Duration

	// Observer receives lifecycle events, typically pkg/metrics.
	Observer Observer
}

// DefaultConfig returns a Config with the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxDisconnected: 128,
		Retention:       2 * time.Minute,
		SnapshotTimeout: 5 * time.Second,
	}
}

// Observer is notified of session lifecycle events.
type Observer interface {
	SessionStarted(restored bool)
	SessionDisconnected()
	SessionEvicted(reason string)
	SessionCounts(active, disconnected int)
}

// Eviction reasons passed to Observer.SessionEvicted.
const (
	EvictCapacity = "capacity"
	EvictExpired  = "expired"
)

// Stats is a point-in-time view of the store.
type Stats struct {
	Active       int    `json:"active"`
	Disconnected int    `json:"disconnected"`
	Restored     uint64 `json:"restored"`
	Evicted      uint64 `json:"evicted"`
	Expired      uint64 `json:"expired"`
}

// Info describes one session for listings.
type Info struct {
	ID             string     `json:"id"`
	PageID         string     `json:"page_id"`
	Status         string     `json:"status"`
	Widgets        int        `json:"widgets"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

type timer interface {
	Stop() bool
}

type disconnected struct {
	session *Session
	at      time.Time
	elem    *list.Element
	timer   timer
}

// Store tracks active sessions and a bounded, time-limited cache of
// disconnected sessions eligible for state restoration. A session id is
// never active and disconnected at the same time.
type Store struct {
	mu           sync.Mutex
	active       map[string]*Session
	disconnected map[string]*disconnected
	order        *list.List // *disconnected, oldest at the front

	config Config
	logger *slog.Logger

	restored uint64
	evicted  uint64
	expired  uint64

	now       func() time.Time
	afterFunc func(time.Duration, func()) timer
}

// NewStore creates a session store. Zero config fields take defaults.
func NewStore(config Config, logger *slog.Logger) *Store {
	def := DefaultConfig()
	if config.MaxDisconnected <= 0 {
		config.MaxDisconnected = def.MaxDisconnected
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	if config.SnapshotTimeout <= 0 {
		config.SnapshotTimeout = def.SnapshotTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		active:       make(map[string]*Session),
		disconnected: make(map[string]*disconnected),
		order:        list.New(),
		config:       config,
		logger:       logger.With("component", "session_store"),
		now:          time.Now,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}

// SetSession makes s active. If a disconnected session with the same id is
// held in memory, or failing that in the snapshot store, its widget state is
// transplanted onto s and the disconnected entry is removed. Reports
// whether state was restored.
func (st *Store) SetSession(ctx context.Context, s *Session) bool {
	st.mu.Lock()
	if st.takeDisconnectedLocked(s) {
		st.active[s.ID] = s
		st.restored++
		st.mu.Unlock()

		st.deleteSnapshot(ctx, s.ID)
		st.observeStart(true)
		st.logger.Debug("session restored", "session_id", s.ID, "source", "memory")
		return true
	}
	st.mu.Unlock()

	restored := st.loadSnapshot(ctx, s)

	st.mu.Lock()
	// A disconnect for this id may have raced with the snapshot load;
	// in-memory state is newer.
	if st.takeDisconnectedLocked(s) {
		restored = true
	}
	st.active[s.ID] = s
	if restored {
		st.restored++
	}
	st.mu.Unlock()

	st.observeStart(restored)
	st.logger.Debug("session started", "session_id", s.ID, "page_id", s.PageID(), "restored", restored)
	return restored
}

// takeDisconnectedLocked moves the state of a disconnected entry for s.ID
// onto s and drops the entry.
func (st *Store) takeDisconnectedLocked(s *Session) bool {
	e, ok := st.disconnected[s.ID]
	if !ok {
		return false
	}
	s.State = e.session.State
	st.removeDisconnectedLocked(s.ID, e)
	return true
}

func (st *Store) removeDisconnectedLocked(id string, e *disconnected) {
	if e.timer != nil {
		e.timer.Stop()
	}
	st.order.Remove(e.elem)
	delete(st.disconnected, id)
}

// GetSession returns an active session.
func (st *Store) GetSession(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.active[id]
	return s, ok
}

// DisconnectSession moves an active session into the disconnected cache,
// evicting the single oldest entry first when the cache is full. The entry
// is removed once the retention window elapses. Reports whether id was
// active.
func (st *Store) DisconnectSession(ctx context.Context, id string) bool {
	st.mu.Lock()
	s, ok := st.active[id]
	if !ok {
		st.mu.Unlock()
		return false
	}
	delete(st.active, id)

	evictedID := ""
	if st.order.Len() >= st.config.MaxDisconnected {
		if front := st.order.Front(); front != nil {
			oldest := front.Value.(*disconnected)
			evictedID = oldest.session.ID
			st.removeDisconnectedLocked(evictedID, oldest)
			st.evicted++
		}
	}

	now := st.now()
	e := &disconnected{session: s, at: now}
	e.elem = st.order.PushBack(e)
	st.disconnected[id] = e
	e.timer = st.afterFunc(st.config.Retention, func() { st.expire(id, e) })
	count := st.order.Len()
	st.mu.Unlock()

	if evictedID != "" {
		st.logger.Debug("evicted disconnected session",
			"session_id", evictedID,
			"reason", EvictCapacity)
		st.observeEvict(EvictCapacity)
	}
	st.observeDisconnect()
	st.logger.Debug("session disconnected",
		"session_id", id,
		"disconnected_count", count)

	st.saveSnapshot(ctx, s, now.Add(st.config.Retention))
	return true
}

// expire removes e if it is still the entry for id. A session that was
// restored and disconnected again has a newer entry with its own timer.
func (st *Store) expire(id string, e *disconnected) {
	st.mu.Lock()
	cur, ok := st.disconnected[id]
	if !ok || cur != e {
		st.mu.Unlock()
		return
	}
	st.removeDisconnectedLocked(id, e)
	st.expired++
	st.mu.Unlock()

	st.observeEvict(EvictExpired)
	st.logger.Debug("disconnected session expired", "session_id", id)
}

// RemoveSession deletes a session from both sets and from the snapshot
// store.
func (st *Store) RemoveSession(ctx context.Context, id string) {
	st.mu.Lock()
	delete(st.active, id)
	if e, ok := st.disconnected[id]; ok {
		st.removeDisconnectedLocked(id, e)
	}
	st.mu.Unlock()

	st.deleteSnapshot(ctx, id)
	st.observeCounts()
}

// IsDisconnected reports whether id is held in the disconnected cache.
func (st *Store) IsDisconnected(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.disconnected[id]
	return ok
}

// Stats returns store statistics.
func (st *Store) Stats() Stats {
	st.mu.Lock()
	defer st.mu.Unlock()
	return Stats{
		Active:       len(st.active),
		Disconnected: st.order.Len(),
		Restored:     st.restored,
		Evicted:      st.evicted,
		Expired:      st.expired,
	}
}

// Sessions lists active sessions followed by disconnected ones, oldest
// disconnect first.
func (st *Store) Sessions() []Info {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Info, 0, len(st.active)+st.order.Len())
	for _, s := range st.active {
		out = append(out, Info{ID: s.ID, PageID: s.PageID(), Status: "active", Widgets: s.State.Len()})
	}
	for el := st.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*disconnected)
		at := e.at
		out = append(out, Info{
			ID:             e.session.ID,
			PageID:         e.session.PageID(),
			Status:         "disconnected",
			Widgets:        e.session.State.Len(),
			DisconnectedAt: &at,
		})
	}
	return out
}

// Shutdown stops expiry timers and, when a snapshot store is configured,
// persists every active and disconnected session so a restarted process
// can restore them.
func (st *Store) Shutdown(ctx context.Context) error {
	st.mu.Lock()
	now := st.now()
	n := len(st.active) + len(st.disconnected)
	pending := make(map[string]*Session, n)
	expires := make(map[string]time.Time, n)
	for id, s := range st.active {
		pending[id] = s
		expires[id] = now.Add(st.config.Retention)
	}
	for id, e := range st.disconnected {
		if e.timer != nil {
			e.timer.Stop()
		}
		pending[id] = e.session
		expires[id] = e.at.Add(st.config.Retention)
	}
	st.mu.Unlock()

	if st.config.Snapshots == nil || len(pending) == 0 {
		return nil
	}

	batch := make(map[string]snapshot.Data, len(pending))
	for id, s := range pending {
		data, err := EncodeSnapshot(s)
		if err != nil {
			st.logger.Warn("failed to encode session on shutdown", "session_id", id, "error", err)
			continue
		}
		batch[id] = snapshot.Data{Data: data, ExpiresAt: expires[id]}
	}
	if err := st.config.Snapshots.SaveAll(ctx, batch); err != nil {
		st.logger.Warn("failed to persist sessions on shutdown",
			"error", err,
			"count", len(batch))
		return err
	}
	st.logger.Info("persisted sessions on shutdown", "count", len(batch))
	return nil
}

func (st *Store) saveSnapshot(ctx context.Context, s *Session, expiresAt time.Time) {
	if st.config.Snapshots == nil {
		return
	}
	data, err := EncodeSnapshot(s)
	if err != nil {
		st.logger.Warn("failed to encode session snapshot", "session_id", s.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, st.config.SnapshotTimeout)
	defer cancel()
	if err := st.config.Snapshots.Save(ctx, s.ID, data, expiresAt); err != nil {
		st.logger.Warn("failed to persist disconnected session", "session_id", s.ID, "error", err)
	}
}

// loadSnapshot transplants persisted state onto s. Failures are logged and
// treated as "nothing to restore".
func (st *Store) loadSnapshot(ctx context.Context, s *Session) bool {
	if st.config.Snapshots == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, st.config.SnapshotTimeout)
	defer cancel()

	data, err := st.config.Snapshots.Load(ctx, s.ID)
	if err != nil {
		st.logger.Warn("failed to load session snapshot", "session_id", s.ID, "error", err)
		return false
	}
	if data == nil {
		return false
	}
	prev, err := DecodeSnapshot(s.ID, data)
	if err != nil {
		st.logger.Warn("discarding unreadable session snapshot", "session_id", s.ID, "error", err)
		return false
	}
	s.State = prev.State
	if err := st.config.Snapshots.Delete(ctx, s.ID); err != nil {
		st.logger.Warn("failed to delete session snapshot", "session_id", s.ID, "error", err)
	}
	st.logger.Debug("session restored", "session_id", s.ID, "source", "snapshot")
	return true
}

func (st *Store) deleteSnapshot(ctx context.Context, id string) {
	if st.config.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, st.config.SnapshotTimeout)
	defer cancel()
	if err := st.config.Snapshots.Delete(ctx, id); err != nil {
		st.logger.Warn("failed to delete session snapshot", "session_id", id, "error", err)
	}
}

func (st *Store) observeStart(restored bool) {
	if st.config.Observer == nil {
		return
	}
	st.config.Observer.SessionStarted(restored)
	st.observeCounts()
}

func (st *Store) observeDisconnect() {
	if st.config.Observer == nil {
		return
	}
	st.config.Observer.SessionDisconnected()
	st.observeCounts()
}

func (st *Store) observeEvict(reason string) {
	if st.config.Observer == nil {
		return
	}
	st.config.Observer.SessionEvicted(reason)
	st.observeCounts()
}

func (st *Store) observeCounts() {
	if st.config.Observer == nil {
		return
	}
	stats := st.Stats()
	st.config.Observer.SessionCounts(stats.Active, stats.Disconnected)
}
