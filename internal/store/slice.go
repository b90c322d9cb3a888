package store

import (
	"github.com/edulead/enquirydesk/internal/apiclient"
	"github.com/edulead/enquirydesk/internal/domain"
)

// Kind names an intent. In-flight work and last errors are tracked per kind
// so overlapping intents (a list and a create, say) do not clobber each
// other's loading signal.
type Kind string

const (
	KindList     Kind = "list"
	KindGet      Kind = "get"
	KindCount    Kind = "count"
	KindCreate   Kind = "create"
	KindUpdate   Kind = "update"
	KindDelete   Kind = "delete"
	KindNewCount Kind = "newCount"
)

// State is the client-side view of one domain collection.
//
// Items keeps insertion order (most recent first for creates) and never holds
// two records with the same id. Count is the server-reported total and may
// differ from len(Items). Loading is true while any intent is in flight.
// Error is the last failure and is cleared by the next intent.
//
// Reducers are pure: they return a new State and never write through the
// receiver's slices or maps, so snapshots handed out earlier stay valid.
type State[T domain.Record] struct {
	Items    []T                          `json:"items"`
	Count    int64                        `json:"count"`
	Loading  bool                         `json:"loading"`
	Error    *apiclient.ErrorInfo         `json:"error"`
	Selected *T                           `json:"selected,omitempty"`
	Pending  map[Kind]int                 `json:"pending,omitempty"`
	Errors   map[Kind]apiclient.ErrorInfo `json:"errors,omitempty"`
}

// NewState returns an empty, idle state.
func NewState[T domain.Record]() State[T] {
	return State[T]{Items: []T{}}
}

// Begin marks an intent of kind as in flight and clears the last error.
func (s State[T]) Begin(kind Kind) State[T] {
	s.Pending = cloneMap(s.Pending)
	s.Pending[kind]++
	s.Loading = true
	s.Error = nil
	if _, ok := s.Errors[kind]; ok {
		s.Errors = cloneMap(s.Errors)
		delete(s.Errors, kind)
	}
	return s
}

// BeginList is Begin(KindList).
func (s State[T]) BeginList() State[T] { return s.Begin(KindList) }

// settle closes one in-flight intent of kind. Settling a kind with nothing in
// flight leaves the counters alone.
func (s State[T]) settle(kind Kind) State[T] {
	if s.Pending[kind] > 0 {
		s.Pending = cloneMap(s.Pending)
		if s.Pending[kind]--; s.Pending[kind] == 0 {
			delete(s.Pending, kind)
		}
	}
	s.Loading = len(s.Pending) > 0
	return s
}

// ListSucceeded replaces Items with records (first occurrence wins on
// duplicate ids) and sets Count to total.
func (s State[T]) ListSucceeded(records []T, total int64) State[T] {
	s = s.settle(KindList)
	s.Items = dedupe(records)
	s.Count = clampCount(total)
	return s
}

// Failed records a terminal failure for kind. Items are left untouched.
func (s State[T]) Failed(kind Kind, info apiclient.ErrorInfo) State[T] {
	s = s.settle(kind)
	s.Error = &info
	s.Errors = cloneMap(s.Errors)
	s.Errors[kind] = info
	return s
}

// ListFailed is Failed(KindList, info).
func (s State[T]) ListFailed(info apiclient.ErrorInfo) State[T] { return s.Failed(KindList, info) }

// CreateSucceeded prepends record and increments Count. A record whose id is
// already listed is moved to the front instead, without touching Count.
func (s State[T]) CreateSucceeded(record T) State[T] {
	s = s.settle(KindCreate)
	id := record.RecordID()
	items := make([]T, 0, len(s.Items)+1)
	items = append(items, record)
	found := false
	for _, it := range s.Items {
		if it.RecordID() == id {
			found = true
			continue
		}
		items = append(items, it)
	}
	s.Items = items
	if !found {
		s.Count++
	}
	return s
}

// UpdateSucceeded replaces the record with the same id in place. An id that
// is not listed is ignored; the next list converges.
func (s State[T]) UpdateSucceeded(record T) State[T] {
	s = s.settle(KindUpdate)
	id := record.RecordID()
	if s.Selected != nil && (*s.Selected).RecordID() == id {
		r := record
		s.Selected = &r
	}
	if i := indexOf(s.Items, id); i >= 0 {
		items := append([]T(nil), s.Items...)
		items[i] = record
		s.Items = items
	}
	return s
}

// DeleteSucceeded removes the record with id and decrements Count, never
// below zero. Count is decremented even when id is not on the current page.
func (s State[T]) DeleteSucceeded(id string) State[T] {
	s = s.settle(KindDelete)
	if i := indexOf(s.Items, id); i >= 0 {
		items := make([]T, 0, len(s.Items)-1)
		items = append(items, s.Items[:i]...)
		items = append(items, s.Items[i+1:]...)
		s.Items = items
	}
	if s.Selected != nil && (*s.Selected).RecordID() == id {
		s.Selected = nil
	}
	s.Count = clampCount(s.Count - 1)
	return s
}

// GetSucceeded stores record as the selected detail and refreshes its row.
func (s State[T]) GetSucceeded(record T) State[T] {
	s = s.settle(KindGet)
	r := record
	s.Selected = &r
	if i := indexOf(s.Items, record.RecordID()); i >= 0 {
		items := append([]T(nil), s.Items...)
		items[i] = record
		s.Items = items
	}
	return s
}

// CountSucceeded sets Count from a count-bearing outcome.
func (s State[T]) CountSucceeded(total int64) State[T] {
	s = s.settle(KindCount)
	s.Count = clampCount(total)
	return s
}

// ClearError drops the last error and the per-kind errors.
func (s State[T]) ClearError() State[T] {
	s.Error = nil
	s.Errors = nil
	return s
}

// Find returns the listed record with id.
func (s State[T]) Find(id string) (T, bool) {
	if i := indexOf(s.Items, id); i >= 0 {
		return s.Items[i], true
	}
	var zero T
	return zero, false
}

func indexOf[T domain.Record](items []T, id string) int {
	for i, it := range items {
		if it.RecordID() == id {
			return i
		}
	}
	return -1
}

func dedupe[T domain.Record](records []T) []T {
	out := make([]T, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		id := r.RecordID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, r)
	}
	return out
}

func clampCount(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
