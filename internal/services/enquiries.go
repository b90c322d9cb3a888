package services

import (
	"context"
	"net/http"

	"github.com/edulead/enquirydesk/internal/apiclient"
	"github.com/edulead/enquirydesk/internal/domain"
	"github.com/edulead/enquirydesk/internal/store"
)

// EnquiryCoordinator adds the unseen-enquiry notification intents to the
// generic enquiry coordinator.
type EnquiryCoordinator struct {
	*Coordinator[domain.Enquiry]
	store *store.Store[store.EnquiryState]
}

// NewEnquiryCoordinator wires the enquiry store.
func NewEnquiryCoordinator(api Upstream, st *store.Store[store.EnquiryState], opts Options) *EnquiryCoordinator {
	return &EnquiryCoordinator{
		Coordinator: NewCoordinator[domain.Enquiry](Enquiries, api, store.EnquirySink{Store: st}, opts),
		store:       st,
	}
}

// Notifications returns the whole enquiry state, including the unseen set.
func (c *EnquiryCoordinator) Notifications() store.EnquiryState { return c.store.State() }

// FetchNewCount replaces the unseen set with the upstream snapshot.
func (c *EnquiryCoordinator) FetchNewCount(ctx context.Context) (store.EnquiryState, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := c.span(ctx, "newCount")

	c.store.Dispatch(store.Lift{Inner: store.Begin[domain.Enquiry]{Kind: store.KindNewCount}})
	resp, err := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/" + Enquiries.Name + "/new/count", Auth: true})
	var (
		entries []domain.UnseenNotification
		total   int64
	)
	if err == nil {
		entries, total, err = apiclient.DecodeList[domain.UnseenNotification](resp)
	}
	defer endSpan(span, err)
	if err != nil {
		info := apiclient.Normalize(err)
		c.log.Warn().Err(err).Int("status", info.Status).Msg("new-count fetch failed")
		st := c.store.Dispatch(store.Lift{Inner: store.Failed[domain.Enquiry]{Kind: store.KindNewCount, Info: info}})
		if c.notify != nil {
			c.notify.Failure(Enquiries.Label, VerbLoad, info)
		}
		return st, err
	}
	return c.store.Dispatch(store.NewCountSucceeded{Entries: entries, Total: total}), nil
}

// OpenNotification marks an enquiry as acted upon by moving it to active.
// The unseen entry goes away once the update lands.
func (c *EnquiryCoordinator) OpenNotification(ctx context.Context, id string) (Result[domain.Enquiry], error) {
	return c.UpdateStatus(ctx, id, domain.StatusActive)
}

// MarkAllRead flags every unseen entry as read without changing the count.
func (c *EnquiryCoordinator) MarkAllRead() store.EnquiryState {
	return c.store.Dispatch(store.MarkAllRead{})
}

// Receive applies a pushed notification. It reports whether the id was
// already in the unseen set; the entry is added either way.
func (c *EnquiryCoordinator) Receive(n domain.UnseenNotification) (duplicate bool) {
	duplicate = c.store.State().HasUnseen(n.ID)
	c.store.Dispatch(store.NotificationReceived{Notification: n})
	return duplicate
}
