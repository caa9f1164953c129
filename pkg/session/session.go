package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vango-dev/pagewire/pkg/protocol"
	"github.com/vango-dev/pagewire/pkg/widget"
)

const snapshotVersion byte = 1

// ErrBadSnapshot is returned for snapshot bytes this package cannot decode.
var ErrBadSnapshot = errors.New("session: bad snapshot")

// Session binds a client session id to the page it runs and that page's
// widget states. The page id is read by Store listings while the runtime
// reruns the session, so it is guarded by its own mutex.
type Session struct {
	ID    string
	State *widget.Store

	mu     sync.Mutex
	pageID string
}

// New returns a session with an empty widget state store.
func New(id, pageID string) *Session {
	return &Session{ID: id, pageID: pageID, State: widget.NewStore()}
}

// PageID returns the page the session is currently on.
func (s *Session) PageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageID
}

// SetPageID moves the session to another page.
func (s *Session) SetPageID(pageID string) {
	s.mu.Lock()
	s.pageID = pageID
	s.mu.Unlock()
}

// EncodeSnapshot serializes a session for a snapshot.Store.
//
// Format: [version:1][pageID:string][widget store]
func EncodeSnapshot(s *Session) ([]byte, error) {
	states, err := widget.MarshalStore(s.State)
	if err != nil {
		return nil, err
	}
	e := protocol.NewEncoder()
	e.WriteByte(snapshotVersion)
	e.WriteString(s.PageID())
	e.WriteLenBytes(states)
	return e.Bytes(), nil
}

// DecodeSnapshot rebuilds a session from EncodeSnapshot output.
func DecodeSnapshot(id string, data []byte) (*Session, error) {
	d := protocol.NewDecoder(data)
	v, err := d.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if v != snapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadSnapshot, v)
	}
	pageID, err := d.ReadString()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	raw, err := d.ReadLenBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	state, err := widget.UnmarshalStore(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	return &Session{ID: id, pageID: pageID, State: state}, nil
}
