// Package session tracks client sessions for the runtime.
//
// A Session binds a client session id to a page and its widget states. The
// Store keeps active sessions plus a cache of recently disconnected ones:
//
//   - DisconnectSession moves a session into the cache, stamped with the
//     current time. The cache holds at most Config.MaxDisconnected entries
//     (128 by default); when full, the single oldest entry is evicted.
//   - Each entry is removed Config.Retention (2 minutes by default) after
//     its disconnect, regardless of later activity.
//   - SetSession with the id of a cached session transplants the cached
//     widget states onto the new session object and removes the entry.
//
// With a snapshot.Store configured, disconnected sessions are also
// persisted, so a session evicted from the cache (or lost in a restart) can
// still be restored until its retention window ends.
package session
