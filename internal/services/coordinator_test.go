package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edulead/enquirydesk/internal/apiclient"
	"github.com/edulead/enquirydesk/internal/domain"
	"github.com/edulead/enquirydesk/internal/store"
)

// ----- Fakes -----

type fakeUpstream struct {
	mu    sync.Mutex
	calls []apiclient.Request
	do    func(req apiclient.Request) (*apiclient.Response, error)
}

func (f *fakeUpstream) Do(_ context.Context, req apiclient.Request) (*apiclient.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.do(req)
}

func (f *fakeUpstream) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method + " " + c.Path
	}
	return out
}

func ok(body string) (*apiclient.Response, error) {
	return &apiclient.Response{Status: http.StatusOK, Body: []byte(body)}, nil
}

type toast struct {
	label, verb string
	info        *apiclient.ErrorInfo
}

type fakeNotifier struct {
	mu     sync.Mutex
	toasts []toast
}

func (n *fakeNotifier) Success(label, verb string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, toast{label: label, verb: verb})
}

func (n *fakeNotifier) Failure(label, verb string, info apiclient.ErrorInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, toast{label: label, verb: verb, info: &info})
}

type fakeLedger struct {
	rec     *domain.Idempotency
	fresh   bool
	err     error
	succeed []string
	failed  []string
}

func (l *fakeLedger) Claim(ctx context.Context, operatorID, resource, key string) (*domain.Idempotency, bool, error) {
	if l.rec != nil && l.rec.Key == "" {
		l.rec.Key = key
	}
	return l.rec, l.fresh, l.err
}

func (l *fakeLedger) Succeed(ctx context.Context, id, recordID string) error {
	l.succeed = append(l.succeed, recordID)
	return nil
}

func (l *fakeLedger) Fail(ctx context.Context, id, cause string) error {
	l.failed = append(l.failed, cause)
	return nil
}

type recorder[S any] struct {
	mu      sync.Mutex
	actions []string
}

func (r *recorder[S]) listen(c store.Change[S]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, c.Action)
}

func newContacts(up Upstream, n Notifier, l KeyLedger) (*Coordinator[domain.Contact], *store.Store[store.State[domain.Contact]], *recorder[store.State[domain.Contact]]) {
	st := store.New(Contacts.Name, store.NewState[domain.Contact]())
	rec := &recorder[store.State[domain.Contact]]{}
	st.Subscribe(rec.listen)
	opts := Options{Notifier: n, Logger: zerolog.Nop()}
	if l != nil {
		opts.Ledger = l
	}
	return NewCoordinator[domain.Contact](Contacts, up, st, opts), st, rec
}

func validContact() Submission {
	return Submission{Fields: map[string]string{"name": "Ana", "email": "ana@example.com", "message": "hi"}}
}

func validEnquiryFields() map[string]string {
	return map[string]string{"fName": "Ana", "email": "ana@example.com", "phone": "0400"}
}

// ----- Tests -----

func TestList_DispatchesBeginThenSucceeded(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		if req.Query.Get("page") != "2" || req.Query.Get("limit") != "5" || !req.Auth {
			t.Errorf("unexpected request %+v", req)
		}
		return ok(`{"success":true,"data":[{"id":"a","status":"new"}],"count":1}`)
	}}
	c, _, rec := newContacts(up, nil, nil)

	res, err := c.List(context.Background(), ListParams{Page: 2, Limit: 5})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(res.State.Items) != 1 || res.State.Count != 1 || res.State.Loading {
		t.Fatalf("state = %+v", res.State)
	}
	if got := strings.Join(rec.actions, ","); got != "list/begin,list/succeeded" {
		t.Fatalf("actions = %s", got)
	}
	if c.LastList() != (ListParams{Page: 2, Limit: 5}) {
		t.Fatalf("last = %+v", c.LastList())
	}
}

func TestList_FailureKeepsItemsAndToasts(t *testing.T) {
	fail := false
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		if fail {
			return nil, &apiclient.Error{Kind: apiclient.TransportFailure, Status: 503, Message: "Service Unavailable"}
		}
		return ok(`{"data":[{"id":"a"}],"count":1}`)
	}}
	n := &fakeNotifier{}
	c, _, rec := newContacts(up, n, nil)
	if _, err := c.List(context.Background(), ListParams{}); err != nil {
		t.Fatalf("first list: %v", err)
	}

	fail = true
	res, err := c.List(context.Background(), ListParams{})
	if !apiclient.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if len(res.State.Items) != 1 || res.State.Error == nil || res.State.Loading {
		t.Fatalf("state = %+v", res.State)
	}
	if len(n.toasts) != 1 || n.toasts[0].info == nil || n.toasts[0].verb != VerbLoad {
		t.Fatalf("toasts = %+v", n.toasts)
	}
	if rec.actions[len(rec.actions)-1] != "list/failed" {
		t.Fatalf("actions = %v", rec.actions)
	}
}

func TestCreate_ValidationBlocksNetwork(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		t.Fatalf("no call expected")
		return nil, nil
	}}
	c, _, rec := newContacts(up, nil, nil)

	_, err := c.Create(context.Background(), Submission{Fields: map[string]string{"email": "not-an-email"}})
	var ve *ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Fields["name"] == "" || ve.Fields["email"] == "" || ve.Fields["message"] == "" {
		t.Fatalf("fields = %+v", ve.Fields)
	}
	if len(rec.actions) != 0 {
		t.Fatalf("no dispatch expected, got %v", rec.actions)
	}
}

func TestCreate_SucceedsThenRelists(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		switch req.Method {
		case http.MethodPost:
			if req.Auth {
				t.Errorf("contact create must be anonymous")
			}
			if req.IdempotencyKey == "" || req.Form.Get("name") != "Ana" {
				t.Errorf("unexpected create %+v", req)
			}
			return ok(`{"success":true,"data":{"id":"c1","name":"Ana","status":"new"}}`)
		default:
			return ok(`{"data":[{"id":"c1","name":"Ana","status":"new"},{"id":"c0"}],"count":2}`)
		}
	}}
	n := &fakeNotifier{}
	l := &fakeLedger{rec: &domain.Idempotency{ID: "row"}, fresh: true}
	c, _, rec := newContacts(up, n, l)

	res, err := c.Create(context.Background(), validContact())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Record == nil || res.Record.ID != "c1" {
		t.Fatalf("record = %+v", res.Record)
	}
	if res.State.Count != 2 || len(res.State.Items) != 2 {
		t.Fatalf("relisted state = %+v", res.State)
	}
	want := "create/begin,create/succeeded,list/begin,list/succeeded"
	if got := strings.Join(rec.actions, ","); got != want {
		t.Fatalf("actions = %s, want %s", got, want)
	}
	if len(l.succeed) != 1 || l.succeed[0] != "c1" {
		t.Fatalf("ledger = %+v", l)
	}
	if len(n.toasts) != 1 || n.toasts[0].verb != VerbCreate || n.toasts[0].info != nil {
		t.Fatalf("toasts = %+v", n.toasts)
	}
}

func TestCreate_InFlightKeyRejected(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		t.Fatalf("no call expected")
		return nil, nil
	}}
	l := &fakeLedger{rec: &domain.Idempotency{ID: "row", State: domain.SubmissionStarted}}
	c, _, _ := newContacts(up, nil, l)

	sub := validContact()
	sub.IdempotencyKey = "k1"
	if _, err := c.Create(context.Background(), sub); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
}

func TestCreate_ReplayFetchesRecordedID(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		if req.Method != http.MethodGet || req.Path != "/contacts/c9" {
			t.Fatalf("unexpected call %s %s", req.Method, req.Path)
		}
		return ok(`{"data":{"id":"c9","name":"Ana"}}`)
	}}
	l := &fakeLedger{rec: &domain.Idempotency{ID: "row", State: domain.SubmissionSucceeded, RecordID: "c9"}}
	c, _, _ := newContacts(up, nil, l)

	res, err := c.Create(context.Background(), validContact())
	if err != nil || !res.Replayed || res.Record.ID != "c9" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestCreate_RejectionMarksLedgerFailed(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		return nil, &apiclient.Error{Kind: apiclient.ServerRejection, Status: 409, Message: "Email already used"}
	}}
	n := &fakeNotifier{}
	l := &fakeLedger{rec: &domain.Idempotency{ID: "row"}, fresh: true}
	c, _, rec := newContacts(up, n, l)

	res, err := c.Create(context.Background(), validContact())
	if !apiclient.IsRejection(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if res.State.Error == nil || res.State.Error.Message != "Email already used" || res.State.Error.Status != 409 {
		t.Fatalf("error = %+v", res.State.Error)
	}
	if len(l.failed) != 1 || l.failed[0] != "Email already used" {
		t.Fatalf("ledger failed = %v", l.failed)
	}
	if got := strings.Join(rec.actions, ","); got != "create/begin,create/failed" {
		t.Fatalf("actions = %s", got)
	}
}

func TestUpdateStatus_FallsBackToReadBack(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		switch {
		case req.Method == http.MethodPatch:
			if req.Form.Get("status") != "blocked" || req.IdempotencyKey == "" {
				t.Errorf("unexpected patch %+v", req)
			}
			return ok(`{"success":true,"message":"Status updated"}`)
		case req.Path == "/contacts/c1":
			return ok(`{"data":{"id":"c1","status":"blocked"}}`)
		default:
			return ok(`{"data":[{"id":"c1","status":"blocked"}],"count":1}`)
		}
	}}
	c, _, _ := newContacts(up, nil, nil)

	res, err := c.UpdateStatus(context.Background(), "c1", domain.StatusBlocked)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if res.Record.Status != domain.StatusBlocked {
		t.Fatalf("record = %+v", res.Record)
	}
	want := []string{"PATCH /contacts/c1", "GET /contacts/c1", "GET /contacts"}
	if got := up.methods(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v", got)
	}
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	c, _, _ := newContacts(&fakeUpstream{}, nil, nil)
	if _, err := c.UpdateStatus(context.Background(), "c1", "archived"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := c.UpdateStatus(context.Background(), "", domain.StatusActive); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}
}

func TestDelete_HardQueryAndCount(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		if req.Method == http.MethodDelete {
			if req.Query.Get("hard") != "true" {
				t.Errorf("expected hard delete")
			}
			return ok(`{"success":true}`)
		}
		return nil, &apiclient.Error{Kind: apiclient.TransportFailure, Err: errors.New("dial tcp: refused")}
	}}
	c, st, _ := newContacts(up, nil, nil)
	st.Dispatch(store.ListSucceeded[domain.Contact]{Records: []domain.Contact{{ID: "c1"}, {ID: "c2"}}, Total: 2})

	res, err := c.Delete(context.Background(), "c1", true)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Re-list failed: the delete outcome stands and items stay visible.
	if res.State.Count != 1 || len(res.State.Items) != 1 || res.State.Items[0].ID != "c2" {
		t.Fatalf("state = %+v", res.State)
	}
}

func TestCount_And_ClearError(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		if req.Path != "/contacts/count" {
			t.Fatalf("path = %s", req.Path)
		}
		return ok(`{"count":42}`)
	}}
	c, st, _ := newContacts(up, nil, nil)
	res, err := c.Count(context.Background())
	if err != nil || res.State.Count != 42 {
		t.Fatalf("res=%+v err=%v", res.State, err)
	}

	st.Dispatch(store.Failed[domain.Contact]{Kind: store.KindList, Info: apiclient.ErrorInfo{Message: "x"}})
	if s := c.ClearError(); s.Error != nil {
		t.Fatalf("error not cleared")
	}
}

func TestCoordinator_OutcomeSurvivesCallerCancel(t *testing.T) {
	release := make(chan struct{})
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		<-release
		return ok(`{"data":[{"id":"a"}],"count":1}`)
	}}
	c, st, _ := newContacts(up, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.List(ctx, ListParams{})
		done <- err
	}()
	cancel()
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("List: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("list did not settle")
	}
	if s := st.State(); s.Loading || s.Count != 1 {
		t.Fatalf("state = %+v", s)
	}
}

func TestCoordinator_WithRealClientRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"data":[{"id":"u1","name":"Root","status":"active"}],"total":1}`)
	}))
	defer srv.Close()

	api, err := apiclient.New(apiclient.Options{
		BaseURL: srv.URL,
		Retry:   apiclient.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
		Tokens:  apiclient.ContextTokens{Fallback: "svc"},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	st := store.New(Users.Name, store.NewState[domain.User]())
	c := NewCoordinator[domain.User](Users, api, st, Options{Logger: zerolog.Nop()})

	res, err := c.List(context.Background(), ListParams{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 || len(res.State.Items) != 1 {
		t.Fatalf("hits=%d state=%+v", hits, res.State)
	}
}

// credentialUpstream is a fakeUpstream that can tell whether a token is on hand.
type credentialUpstream struct {
	*fakeUpstream
	has bool
}

func (u credentialUpstream) HasCredential(context.Context) bool { return u.has }

func TestUpdateStatus_EnvelopeRejectionFails(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		if req.Method != http.MethodPatch {
			t.Fatalf("unexpected %s %s", req.Method, req.Path)
		}
		return ok(`{"success":false,"message":"Contact is locked"}`)
	}}
	n := &fakeNotifier{}
	c, _, rec := newContacts(up, n, nil)

	res, err := c.UpdateStatus(context.Background(), "c1", domain.StatusBlocked)
	if !apiclient.IsRejection(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if res.State.Error == nil || res.State.Error.Message != "Contact is locked" {
		t.Fatalf("error = %+v", res.State.Error)
	}
	if got := strings.Join(rec.actions, ","); got != "update/begin,update/failed" {
		t.Fatalf("actions = %s", got)
	}
	if len(n.toasts) != 1 || n.toasts[0].info == nil {
		t.Fatalf("toasts = %+v", n.toasts)
	}
	if got := up.methods(); len(got) != 1 {
		t.Fatalf("read back after rejection: %v", got)
	}
}

func TestDelete_EnvelopeRejectionKeepsRecord(t *testing.T) {
	up := &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		if req.Method != http.MethodDelete {
			t.Fatalf("unexpected %s %s", req.Method, req.Path)
		}
		return ok(`{"success":false,"message":"Contact has open enquiries"}`)
	}}
	n := &fakeNotifier{}
	c, st, rec := newContacts(up, n, nil)
	st.Dispatch(store.ListSucceeded[domain.Contact]{Records: []domain.Contact{{ID: "c1"}, {ID: "c2"}}, Total: 2})

	res, err := c.Delete(context.Background(), "c1", false)
	if !apiclient.IsRejection(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if res.State.Count != 2 || len(res.State.Items) != 2 {
		t.Fatalf("record removed: %+v", res.State)
	}
	if res.State.Error == nil || res.State.Error.Message != "Contact has open enquiries" {
		t.Fatalf("error = %+v", res.State.Error)
	}
	if got := rec.actions[len(rec.actions)-1]; got != "delete/failed" {
		t.Fatalf("last action = %s", got)
	}
	if len(n.toasts) != 1 || n.toasts[0].info == nil {
		t.Fatalf("toasts = %+v", n.toasts)
	}
}

func TestCreate_AnonymousReplayUsesLedger(t *testing.T) {
	up := credentialUpstream{fakeUpstream: &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		t.Fatalf("no call expected, got %s %s", req.Method, req.Path)
		return nil, nil
	}}}
	l := &fakeLedger{rec: &domain.Idempotency{ID: "row", State: domain.SubmissionSucceeded, RecordID: "e7"}}
	st := store.New(Enquiries.Name, store.NewEnquiryState())
	c := NewEnquiryCoordinator(up, st, Options{Ledger: l, Logger: zerolog.Nop()})

	sub := Submission{IdempotencyKey: "form-1", Fields: validEnquiryFields()}
	res, err := c.Create(context.Background(), sub)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.Replayed || res.RecordID != "e7" || res.Record != nil {
		t.Fatalf("res = %+v", res)
	}
}

func TestCreate_ReplayWithCredentialReadsBack(t *testing.T) {
	up := credentialUpstream{has: true, fakeUpstream: &fakeUpstream{do: func(req apiclient.Request) (*apiclient.Response, error) {
		return ok(`{"data":{"id":"e7","fName":"Ana"}}`)
	}}}
	l := &fakeLedger{rec: &domain.Idempotency{ID: "row", State: domain.SubmissionSucceeded, RecordID: "e7"}}
	st := store.New(Enquiries.Name, store.NewEnquiryState())
	c := NewEnquiryCoordinator(up, st, Options{Ledger: l, Logger: zerolog.Nop()})

	res, err := c.Create(context.Background(), Submission{IdempotencyKey: "form-1", Fields: validEnquiryFields()})
	if err != nil || !res.Replayed || res.RecordID != "e7" || res.Record == nil || res.Record.ID != "e7" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if got := up.methods(); len(got) != 1 || got[0] != "GET /enquiries/e7" {
		t.Fatalf("calls = %v", got)
	}
}
