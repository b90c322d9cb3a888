package store

import "github.com/edulead/enquirydesk/internal/domain"

// EnquiryState extends the enquiry slice with the unseen set behind the
// notification badge.
//
// An entry is in NewEnquiries while its enquiry's last known status is "new"
// and it has not been deleted. NewCount is the unseen counter: it moves with
// REST snapshots, pushed events and status-change/delete outcomes only; the
// read flag never changes it.
type EnquiryState struct {
	State[domain.Enquiry]
	NewEnquiries []domain.UnseenNotification `json:"newEnquiries"`
	NewCount     int64                       `json:"newCount"`
}

// NewEnquiryState returns an empty enquiry state.
func NewEnquiryState() EnquiryState {
	return EnquiryState{
		State:        NewState[domain.Enquiry](),
		NewEnquiries: []domain.UnseenNotification{},
	}
}

// HasUnseen reports whether id is in the unseen set.
func (s EnquiryState) HasUnseen(id string) bool {
	for _, n := range s.NewEnquiries {
		if n.ID == id {
			return true
		}
	}
	return false
}

// NewCountSucceeded replaces the unseen set with a REST snapshot. Read flags
// of entries already known locally are kept.
func (s EnquiryState) NewCountSucceeded(entries []domain.UnseenNotification, total int64) EnquiryState {
	s.State = s.State.settle(KindNewCount)
	read := make(map[string]bool, len(s.NewEnquiries))
	for _, n := range s.NewEnquiries {
		if n.Read {
			read[n.ID] = true
		}
	}
	out := make([]domain.UnseenNotification, 0, len(entries))
	for _, e := range entries {
		e.Read = read[e.ID]
		out = append(out, e)
	}
	s.NewEnquiries = out
	s.NewCount = clampCount(total)
	return s
}

// NotificationReceived prepends a pushed entry as unread and bumps NewCount
// by one. Entries are not deduplicated by id.
func (s EnquiryState) NotificationReceived(n domain.UnseenNotification) EnquiryState {
	n.Read = false
	out := make([]domain.UnseenNotification, 0, len(s.NewEnquiries)+1)
	out = append(out, n)
	out = append(out, s.NewEnquiries...)
	s.NewEnquiries = out
	s.NewCount++
	return s
}

// MarkAllRead flags every unseen entry as read. Entries and NewCount are kept.
func (s EnquiryState) MarkAllRead() EnquiryState {
	out := make([]domain.UnseenNotification, len(s.NewEnquiries))
	for i, n := range s.NewEnquiries {
		n.Read = true
		out[i] = n
	}
	s.NewEnquiries = out
	return s
}

// dropUnseen removes every entry for id and decrements NewCount once per
// removed entry. An absent id changes nothing.
func (s EnquiryState) dropUnseen(id string) EnquiryState {
	removed := 0
	out := make([]domain.UnseenNotification, 0, len(s.NewEnquiries))
	for _, n := range s.NewEnquiries {
		if n.ID == id {
			removed++
			continue
		}
		out = append(out, n)
	}
	if removed == 0 {
		return s
	}
	s.NewEnquiries = out
	s.NewCount = clampCount(s.NewCount - int64(removed))
	return s
}

// Lift runs a generic enquiry-slice action against EnquiryState and
// reconciles the unseen set with its outcome: an update that moves an
// enquiry out of "new", or a delete, removes the unseen entry. Reads never
// touch the set.
type Lift struct {
	Inner Action[State[domain.Enquiry]]
}

func (a Lift) Apply(s EnquiryState) EnquiryState {
	s.State = a.Inner.Apply(s.State)
	switch in := a.Inner.(type) {
	case UpdateSucceeded[domain.Enquiry]:
		if in.Record.Status != domain.StatusNew {
			s = s.dropUnseen(in.Record.ID)
		}
	case DeleteSucceeded[domain.Enquiry]:
		s = s.dropUnseen(in.ID)
	}
	return s
}

func (a Lift) Type() string { return a.Inner.Type() }

// NewCountSucceeded carries the REST snapshot of unseen enquiries.
type NewCountSucceeded struct {
	Entries []domain.UnseenNotification
	Total   int64
}

func (a NewCountSucceeded) Apply(s EnquiryState) EnquiryState {
	return s.NewCountSucceeded(a.Entries, a.Total)
}
func (a NewCountSucceeded) Type() string { return "newCount/succeeded" }

// NotificationReceived carries one pushed "new enquiry" event.
type NotificationReceived struct{ Notification domain.UnseenNotification }

func (a NotificationReceived) Apply(s EnquiryState) EnquiryState {
	return s.NotificationReceived(a.Notification)
}
func (a NotificationReceived) Type() string { return "notification/received" }

// MarkAllRead flags all unseen entries as read.
type MarkAllRead struct{}

func (MarkAllRead) Apply(s EnquiryState) EnquiryState { return s.MarkAllRead() }
func (MarkAllRead) Type() string                      { return "notification/readAll" }

// EnquirySink adapts the enquiry store to the generic slice dispatcher used by
// coordinators.
type EnquirySink struct {
	Store *Store[EnquiryState]
}

// Dispatch lifts a and returns the resulting enquiry slice.
func (e EnquirySink) Dispatch(a Action[State[domain.Enquiry]]) State[domain.Enquiry] {
	return e.Store.Dispatch(Lift{Inner: a}).State
}

// State returns the enquiry slice.
func (e EnquirySink) State() State[domain.Enquiry] {
	return e.Store.State().State
}
