package widget

import "sync"

// Store holds the widget states of one session, keyed by widget id.
// It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{states: make(map[string]State)}
}

// Get returns the state stored under id.
func (s *Store) Get(id string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	return st, ok
}

// Set stores st under its own widget id, replacing any previous state.
func (s *Store) Set(st State) {
	if st == nil {
		return
	}
	s.mu.Lock()
	s.states[st.WidgetID()] = st
	s.mu.Unlock()
}

// Delete removes the state stored under id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()
}

// Len returns the number of stored states.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Snapshot returns a shallow copy of the id -> state map.
func (s *Store) Snapshot() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]State, len(s.states))
	for id, st := range s.states {
		out[id] = st
	}
	return out
}

// ResetStates clears every stored state. Used when a rerun targets a page
// other than the session's current one.
func (s *Store) ResetStates() {
	s.mu.Lock()
	s.states = make(map[string]State)
	s.mu.Unlock()
}

// SetStates overlays states onto the store.
func (s *Store) SetStates(states []State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		if st == nil {
			continue
		}
		s.states[st.WidgetID()] = st
	}
}

// ResetButtons clears the edge-triggered flags: every button's Clicked and
// every form's Submitted.
func (s *Store) ResetButtons() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		switch v := st.(type) {
		case *ButtonState:
			v.Clicked = false
		case *FormState:
			v.Submitted = false
		}
	}
}

// lookup returns the state under id only if it has the requested type.
func lookup[T State](s *Store, id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id].(T)
	return st, ok
}

func (s *Store) Button(id string) (*ButtonState, bool) { return lookup[*ButtonState](s, id) }

func (s *Store) TextInput(id string) (*TextInputState, bool) {
	return lookup[*TextInputState](s, id)
}

func (s *Store) NumberInput(id string) (*NumberInputState, bool) {
	return lookup[*NumberInputState](s, id)
}

func (s *Store) Checkbox(id string) (*CheckboxState, bool) { return lookup[*CheckboxState](s, id) }
func (s *Store) Select(id string) (*SelectState, bool)     { return lookup[*SelectState](s, id) }
func (s *Store) Text(id string) (*TextState, bool)         { return lookup[*TextState](s, id) }
func (s *Store) Table(id string) (*TableState, bool)       { return lookup[*TableState](s, id) }
func (s *Store) Form(id string) (*FormState, bool)         { return lookup[*FormState](s, id) }
func (s *Store) Columns(id string) (*ColumnsState, bool)   { return lookup[*ColumnsState](s, id) }
