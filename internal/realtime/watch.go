package realtime

import "github.com/edulead/enquirydesk/internal/store"

// StateEvent is the payload of a state event.
type StateEvent struct {
	Resource string `json:"resource"`
	Seq      uint64 `json:"seq"`
	Action   string `json:"action"`
	State    any    `json:"state"`
}

// Watch publishes a state event for every action applied to st. The returned
// func stops watching.
func Watch[S any](hub *Hub, st *store.Store[S]) func() {
	return st.Subscribe(func(c store.Change[S]) {
		hub.Publish(EventState, StateEvent{
			Resource: c.Store,
			Seq:      c.Seq,
			Action:   c.Action,
			State:    c.State,
		})
	})
}

// Snapshot returns the current state of st as a state event.
func Snapshot[S any](st *store.Store[S]) StateEvent {
	s, seq := st.Snapshot()
	return StateEvent{Resource: st.Name(), Seq: seq, Action: "snapshot", State: s}
}
