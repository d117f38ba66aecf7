// Package state holds the application state tree and dispatches mutations
// to the handlers registered for the mutated path.
package state

import (
	"sync"

	"github.com/bryan-buckman/rssagg/internal/model"
)

// Path names a mutable region of the state tree.
type Path string

// Mutation paths. Handlers are looked up by exact path.
const (
	PathForm          Path = "form"
	PathLoadingStatus Path = "loadingProcess.status"
	PathLoadingError  Path = "loadingProcess.error"
	PathFeeds         Path = "feeds"
	PathPosts         Path = "posts"
	PathSeenPosts     Path = "seenPosts"
	PathModalPostID   Path = "modal.postId"
)

// Handler receives a snapshot of the state after a mutation.
// Handlers must not call Apply on the store that invoked them.
type Handler func(s model.State)

type subscription struct {
	id int
	fn Handler
}

// Store owns the state tree.
type Store struct {
	// dispatch serializes mutate+notify so a mutation and its render are
	// never interleaved with another mutation.
	dispatch sync.Mutex

	mu       sync.RWMutex
	state    model.State
	handlers map[Path][]subscription
	nextID   int
}

// New creates a store holding initial.
func New(initial model.State) *Store {
	if initial.SeenPosts == nil {
		initial.SeenPosts = make(map[string]struct{})
	}
	return &Store{
		state:    initial,
		handlers: make(map[Path][]subscription),
	}
}

// GetState returns a deep copy of the current state.
func (s *Store) GetState() model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Apply mutates the state under path and notifies the path's handlers.
func (s *Store) Apply(path Path, update func(*model.State)) {
	s.ApplyIf(path, func(st *model.State) bool {
		update(st)
		return true
	})
}

// ApplyIf is Apply where update reports whether it changed anything;
// handlers run only when it did.
func (s *Store) ApplyIf(path Path, update func(*model.State) bool) bool {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	changed := update(&s.state)
	if !changed {
		s.mu.Unlock()
		return false
	}
	subs := append([]subscription(nil), s.handlers[path]...)
	var snapshot model.State
	if len(subs) > 0 {
		snapshot = s.state.Clone()
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snapshot)
	}
	return true
}

// Subscribe registers h for exactly path and returns a function that
// removes it.
func (s *Store) Subscribe(path Path, h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.handlers[path] = append(s.handlers[path], subscription{id: id, fn: h})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.handlers[path]
		for i, sub := range subs {
			if sub.id == id {
				s.handlers[path] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Subscribed reports whether any handler is registered for path.
func (s *Store) Subscribed(path Path) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers[path]) > 0
}
