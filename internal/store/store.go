// Package store holds the client-side state of each dashboard domain.
//
// A Store is an explicit container around one state value. All mutation goes
// through Dispatch, which applies a pure Action under a mutex, so every
// reducer observes a single total order regardless of how many goroutines
// (request handlers, the push-stream bridge) dispatch concurrently.
// Listeners run inside that order and must not dispatch themselves.
package store

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var dispatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "store_dispatch_total",
		Help: "Actions applied to store slices by store and action type.",
	},
	[]string{"store", "action"},
)

func init() {
	prometheus.MustRegister(dispatches)
}

// Change describes one applied action.
type Change[S any] struct {
	Store  string
	Seq    uint64
	Action string
	State  S
}

// Listener observes applied actions.
type Listener[S any] func(Change[S])

// Store is a mutex-guarded state container. The zero value is not usable;
// use New.
type Store[S any] struct {
	name string

	mu        sync.Mutex
	state     S
	seq       uint64
	listeners map[uint64]Listener[S]
	nextID    uint64
}

// New returns a Store named name holding initial.
func New[S any](name string, initial S) *Store[S] {
	return &Store[S]{
		name:      name,
		state:     initial,
		listeners: make(map[uint64]Listener[S]),
	}
}

// Name returns the store name (the resource it mirrors).
func (s *Store[S]) Name() string { return s.name }

// State returns the current state snapshot.
func (s *Store[S]) State() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current state with its sequence number.
func (s *Store[S]) Snapshot() (S, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.seq
}

// Dispatch applies a and notifies listeners, returning the new state.
func (s *Store[S]) Dispatch(a Action[S]) S {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = a.Apply(s.state)
	s.seq++
	dispatches.WithLabelValues(s.name, a.Type()).Inc()

	ch := Change[S]{Store: s.name, Seq: s.seq, Action: a.Type(), State: s.state}
	for _, l := range s.listeners {
		l(ch)
	}
	return s.state
}

// Subscribe registers l and returns a function that removes it.
func (s *Store[S]) Subscribe(l Listener[S]) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
