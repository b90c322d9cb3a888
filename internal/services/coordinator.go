package services

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edulead/enquirydesk/internal/apiclient"
	"github.com/edulead/enquirydesk/internal/domain"
	"github.com/edulead/enquirydesk/internal/store"
	"github.com/edulead/enquirydesk/internal/utils"
)

// Upstream performs one logical upstream call.
type Upstream interface {
	Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error)
}

// Sink receives the actions of one resource's slice.
type Sink[T domain.Record] interface {
	Dispatch(store.Action[store.State[T]]) store.State[T]
	State() store.State[T]
}

// Notifier surfaces transient feedback for settled intents. verb is one of
// the Verb constants.
type Notifier interface {
	Success(label, verb string)
	Failure(label, verb string, info apiclient.ErrorInfo)
}

// Verbs describing an intent in toasts.
const (
	VerbLoad   = "load"
	VerbCreate = "create"
	VerbUpdate = "update"
	VerbStatus = "status"
	VerbDelete = "delete"
)

// KeyLedger records create submissions by idempotency key.
type KeyLedger interface {
	Claim(ctx context.Context, operatorID, resource, key string) (rec *domain.Idempotency, fresh bool, err error)
	Succeed(ctx context.Context, id, recordID string) error
	Fail(ctx context.Context, id, cause string) error
}

// Resource describes one upstream collection.
type Resource struct {
	// Name is the upstream path segment and the store name ("enquiries").
	Name string
	// Label is the singular noun used in toasts ("enquiry").
	Label string
	// AnonymousCreate sends creates without a credential (public forms).
	AnonymousCreate bool
	Rules           Rules
}

// Submission is a create or update payload. Fields are sent form-encoded;
// Files switch the body to multipart.
type Submission struct {
	Fields         map[string]string
	Files          []apiclient.File
	IdempotencyKey string
	OperatorID     string
}

func (s Submission) hasFile(field string) bool {
	for _, f := range s.Files {
		if f.Field == field && len(f.Data) > 0 {
			return true
		}
	}
	return false
}

func (s Submission) form() url.Values {
	v := url.Values{}
	for k, val := range s.Fields {
		v.Set(k, val)
	}
	return v
}

// ListParams selects a page. Zero values fall back to page 1 and the
// coordinator's default limit.
type ListParams struct {
	Page  int
	Limit int
}

// Result is the outcome of an intent: the slice after the terminal action and,
// for single-record intents, the record.
type Result[T domain.Record] struct {
	Record   *T             `json:"record,omitempty"`
	RecordID string         `json:"record_id,omitempty"`
	State    store.State[T] `json:"state"`
	Replayed bool           `json:"replayed,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	Notifier     Notifier
	Ledger       KeyLedger
	Logger       zerolog.Logger
	DefaultLimit int
}

// Coordinator runs the intents of one resource.
//
// Every intent dispatches Begin before the call and exactly one Succeeded or
// Failed afterwards. Outcomes are dispatched in the order calls settle. The
// outcome path ignores caller cancellation; upstream timeouts still bound
// each attempt.
type Coordinator[T domain.Record] struct {
	res    Resource
	api    Upstream
	sink   Sink[T]
	notify Notifier
	ledger KeyLedger
	log    zerolog.Logger
	limit  int

	mu   sync.Mutex
	last ListParams
}

// NewCoordinator builds a coordinator for res.
func NewCoordinator[T domain.Record](res Resource, api Upstream, sink Sink[T], opts Options) *Coordinator[T] {
	limit := opts.DefaultLimit
	if limit <= 0 {
		limit = 10
	}
	return &Coordinator[T]{
		res:    res,
		api:    api,
		sink:   sink,
		notify: opts.Notifier,
		ledger: opts.Ledger,
		log:    opts.Logger.With().Str("component", "coordinator").Str("resource", res.Name).Logger(),
		limit:  limit,
		last:   ListParams{Page: 1, Limit: limit},
	}
}

// Resource returns the coordinated resource.
func (c *Coordinator[T]) Resource() Resource { return c.res }

// State returns the current slice.
func (c *Coordinator[T]) State() store.State[T] { return c.sink.State() }

// LastList returns the parameters of the most recent list intent.
func (c *Coordinator[T]) LastList() ListParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Coordinator[T]) span(ctx context.Context, intent string) (context.Context, trace.Span) {
	return otel.Tracer("services").Start(ctx, c.res.Name+"."+intent,
		trace.WithAttributes(attribute.String("resource", c.res.Name)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *Coordinator[T]) path(id ...string) string {
	p := "/" + c.res.Name
	for _, s := range id {
		p += "/" + url.PathEscape(s)
	}
	return p
}

// fail dispatches the terminal failure of kind and raises an error toast.
func (c *Coordinator[T]) fail(kind store.Kind, verb string, err error) store.State[T] {
	info := apiclient.Normalize(err)
	st := c.sink.Dispatch(store.Failed[T]{Kind: kind, Info: info})
	c.log.Warn().Err(err).Str("intent", string(kind)).Int("status", info.Status).Msg("intent failed")
	if c.notify != nil {
		c.notify.Failure(c.res.Label, verb, info)
	}
	return st
}

func (c *Coordinator[T]) succeed(verb string) {
	if c.notify != nil {
		c.notify.Success(c.res.Label, verb)
	}
}

// List fetches a page and replaces the listed items.
func (c *Coordinator[T]) List(ctx context.Context, p ListParams) (Result[T], error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := c.span(ctx, "list")
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = c.limit
	}
	c.mu.Lock()
	c.last = p
	c.mu.Unlock()

	c.sink.Dispatch(store.Begin[T]{Kind: store.KindList})
	resp, err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   c.path(),
		Query:  utils.PageQuery(p.Page, p.Limit),
		Auth:   true,
	})
	var (
		items []T
		total int64
	)
	if err == nil {
		items, total, err = apiclient.DecodeList[T](resp)
	}
	defer endSpan(span, err)
	if err != nil {
		return Result[T]{State: c.fail(store.KindList, VerbLoad, err)}, err
	}
	st := c.sink.Dispatch(store.ListSucceeded[T]{Records: items, Total: total})
	return Result[T]{State: st}, nil
}

// fetch reads one record without dispatching.
func (c *Coordinator[T]) fetch(ctx context.Context, id string) (T, error) {
	resp, err := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: c.path(id), Auth: true})
	if err != nil {
		var zero T
		return zero, err
	}
	return apiclient.DecodeData[T](resp)
}

// Get loads one record as the selected detail.
func (c *Coordinator[T]) Get(ctx context.Context, id string) (Result[T], error) {
	if id == "" {
		return Result[T]{State: c.sink.State()}, ErrEmptyID
	}
	ctx = context.WithoutCancel(ctx)
	ctx, span := c.span(ctx, "get")

	c.sink.Dispatch(store.Begin[T]{Kind: store.KindGet})
	rec, err := c.fetch(ctx, id)
	defer endSpan(span, err)
	if err != nil {
		return Result[T]{State: c.fail(store.KindGet, VerbLoad, err)}, err
	}
	st := c.sink.Dispatch(store.GetSucceeded[T]{Record: rec})
	return Result[T]{Record: &rec, State: st}, nil
}

// Count refreshes the server-side total.
func (c *Coordinator[T]) Count(ctx context.Context) (Result[T], error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := c.span(ctx, "count")

	c.sink.Dispatch(store.Begin[T]{Kind: store.KindCount})
	resp, err := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: c.path("count"), Auth: true})
	var n int64
	if err == nil {
		n, err = apiclient.DecodeCount(resp)
	}
	defer endSpan(span, err)
	if err != nil {
		return Result[T]{State: c.fail(store.KindCount, VerbLoad, err)}, err
	}
	return Result[T]{State: c.sink.Dispatch(store.CountSucceeded[T]{Total: n})}, nil
}

// Create submits a new record.
//
// The submission always carries an idempotency key (the caller's or a fresh
// one), so transport failures are retried. With a ledger, a key that already
// succeeded is answered by fetching the recorded id instead of submitting
// again (see replay), and a key still in flight is rejected with
// ErrSubmissionInFlight.
func (c *Coordinator[T]) Create(ctx context.Context, sub Submission) (Result[T], error) {
	if err := c.res.Rules.Check(sub, false); err != nil {
		return Result[T]{State: c.sink.State()}, err
	}
	ctx = context.WithoutCancel(ctx)
	key := sub.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	var claim *domain.Idempotency
	if c.ledger != nil {
		rec, fresh, err := c.ledger.Claim(ctx, sub.OperatorID, c.res.Name, key)
		if err != nil {
			return Result[T]{State: c.sink.State()}, err
		}
		if !fresh {
			if rec.State == domain.SubmissionSucceeded && rec.RecordID != "" {
				return c.replay(ctx, key, rec.RecordID)
			}
			return Result[T]{State: c.sink.State()}, ErrSubmissionInFlight
		}
		claim = rec
	}

	ctx, span := c.span(ctx, "create")
	c.sink.Dispatch(store.Begin[T]{Kind: store.KindCreate})
	resp, err := c.api.Do(ctx, apiclient.Request{
		Method:         http.MethodPost,
		Path:           c.path(),
		Form:           sub.form(),
		Files:          sub.Files,
		Auth:           !c.res.AnonymousCreate,
		IdempotencyKey: key,
	})
	var rec T
	if err == nil {
		rec, err = apiclient.DecodeData[T](resp)
	}
	if err == nil && rec.RecordID() == "" {
		err = &apiclient.Error{Kind: apiclient.DecodeFailure, Status: resp.Status, Method: http.MethodPost, Path: c.path(), Message: "response carries no record id"}
	}
	defer endSpan(span, err)
	if err != nil {
		if claim != nil {
			if lerr := c.ledger.Fail(ctx, claim.ID, apiclient.Normalize(err).Message); lerr != nil {
				c.log.Error().Err(lerr).Str("key", key).Msg("ledger fail")
			}
		}
		return Result[T]{State: c.fail(store.KindCreate, VerbCreate, err)}, err
	}

	st := c.sink.Dispatch(store.CreateSucceeded[T]{Record: rec})
	if claim != nil {
		if lerr := c.ledger.Succeed(ctx, claim.ID, rec.RecordID()); lerr != nil {
			c.log.Error().Err(lerr).Str("key", key).Msg("ledger succeed")
		}
	}
	c.succeed(VerbCreate)
	return c.relist(ctx, Result[T]{Record: &rec, State: st}), nil
}

// replay answers a resubmitted key that already succeeded. The recorded
// record is read back when the call can be authorised; an anonymous public
// form without any credential only gets the recorded id.
func (c *Coordinator[T]) replay(ctx context.Context, key, recordID string) (Result[T], error) {
	lg := c.log.Info().Str("key", key).Str("record_id", recordID)
	if c.res.AnonymousCreate && !c.canAuthorize(ctx) {
		lg.Msg("replaying completed submission from ledger")
		return Result[T]{State: c.sink.State(), RecordID: recordID, Replayed: true}, nil
	}
	lg.Msg("replaying completed submission")
	res, err := c.Get(ctx, recordID)
	if err != nil {
		return res, err
	}
	res.RecordID = recordID
	res.Replayed = true
	return res, nil
}

// canAuthorize reports whether an authorised upstream call made with ctx
// would carry a token. Upstreams that cannot tell are assumed able to.
func (c *Coordinator[T]) canAuthorize(ctx context.Context) bool {
	if cr, ok := c.api.(interface{ HasCredential(context.Context) bool }); ok {
		return cr.HasCredential(ctx)
	}
	return true
}

// Update edits a record.
func (c *Coordinator[T]) Update(ctx context.Context, id string, sub Submission) (Result[T], error) {
	if id == "" {
		return Result[T]{State: c.sink.State()}, ErrEmptyID
	}
	if err := c.res.Rules.Check(sub, true); err != nil {
		return Result[T]{State: c.sink.State()}, err
	}
	return c.mutate(ctx, "update", VerbUpdate, id, apiclient.Request{
		Method:         http.MethodPut,
		Path:           c.path(id),
		Form:           sub.form(),
		Files:          sub.Files,
		Auth:           true,
		IdempotencyKey: keyOr(sub.IdempotencyKey),
	})
}

// UpdateStatus moves a record to status.
func (c *Coordinator[T]) UpdateStatus(ctx context.Context, id string, status domain.Status) (Result[T], error) {
	if id == "" {
		return Result[T]{State: c.sink.State()}, ErrEmptyID
	}
	if err := checkStatus(status); err != nil {
		return Result[T]{State: c.sink.State()}, err
	}
	return c.mutate(ctx, "status", VerbStatus, id, apiclient.Request{
		Method:         http.MethodPatch,
		Path:           c.path(id),
		Form:           url.Values{"status": {string(status)}},
		Auth:           true,
		IdempotencyKey: uuid.NewString(),
	})
}

func (c *Coordinator[T]) mutate(ctx context.Context, intent, verb, id string, req apiclient.Request) (Result[T], error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := c.span(ctx, intent)

	c.sink.Dispatch(store.Begin[T]{Kind: store.KindUpdate})
	resp, err := c.api.Do(ctx, req)
	var rec T
	if err == nil {
		rec, err = apiclient.DecodeData[T](resp)
	}
	// a bare {"success":true,"message":...} decodes to a record without id
	if err == nil && rec.RecordID() == "" {
		rec, err = c.fetch(ctx, id)
	}
	defer endSpan(span, err)
	if err != nil {
		return Result[T]{State: c.fail(store.KindUpdate, verb, err)}, err
	}
	st := c.sink.Dispatch(store.UpdateSucceeded[T]{Record: rec})
	c.succeed(verb)
	return c.relist(ctx, Result[T]{Record: &rec, State: st}), nil
}

// Delete removes a record. hard asks the upstream to purge it instead of
// soft-deleting.
func (c *Coordinator[T]) Delete(ctx context.Context, id string, hard bool) (Result[T], error) {
	if id == "" {
		return Result[T]{State: c.sink.State()}, ErrEmptyID
	}
	ctx = context.WithoutCancel(ctx)
	ctx, span := c.span(ctx, "delete")
	span.SetAttributes(attribute.Bool("hard", hard))

	req := apiclient.Request{
		Method:         http.MethodDelete,
		Path:           c.path(id),
		Auth:           true,
		IdempotencyKey: uuid.NewString(),
	}
	if hard {
		req.Query = url.Values{"hard": {"true"}}
	}

	c.sink.Dispatch(store.Begin[T]{Kind: store.KindDelete})
	resp, err := c.api.Do(ctx, req)
	if err == nil {
		err = apiclient.CheckEnvelope(resp)
	}
	defer endSpan(span, err)
	if err != nil {
		return Result[T]{State: c.fail(store.KindDelete, VerbDelete, err)}, err
	}
	st := c.sink.Dispatch(store.DeleteSucceeded[T]{ID: id})
	c.succeed(VerbDelete)
	return c.relist(ctx, Result[T]{State: st}), nil
}

// ClearError drops the slice's last error.
func (c *Coordinator[T]) ClearError() store.State[T] {
	return c.sink.Dispatch(store.ClearError[T]{})
}

// relist re-runs the last list so server-derived fields converge. A failed
// re-list is already dispatched and toasted; the mutation still succeeded.
func (c *Coordinator[T]) relist(ctx context.Context, res Result[T]) Result[T] {
	after, err := c.List(ctx, c.LastList())
	if err != nil {
		return res
	}
	res.State = after.State
	return res
}

func keyOr(k string) string {
	if k != "" {
		return k
	}
	return uuid.NewString()
}

// IsUpstream reports whether err came from the upstream API rather than local
// validation or the ledger.
func IsUpstream(err error) bool {
	var ae *apiclient.Error
	return errors.As(err, &ae) || errors.Is(err, apiclient.ErrMissingCredential)
}
