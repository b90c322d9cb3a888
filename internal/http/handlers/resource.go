// Resource HTTP handlers.
//
// This file exposes the same set of endpoints for every dashboard collection
// (users, enquiries, follow-ups, contacts, services):
//   - GET    /{r}/state          (current slice snapshot)
//   - GET    /{r}                (list intent, paginated)
//   - GET    /{r}/count          (count intent)
//   - GET    /{r}/{id}           (detail intent)
//   - POST   /{r}                (create, JSON or multipart)
//   - PUT    /{r}/{id}           (edit)
//   - PATCH  /{r}/{id}/status    (status change)
//   - DELETE /{r}/{id}           (soft delete, ?hard=true purges)
//   - POST   /{r}/clear-error    (dismiss the last error)
//
// Handlers are transport-thin: they bind input, call the resource's
// coordinator, and render the resulting slice. Failures keep the usual error
// envelope; the slice (with its error set) is also pushed on the event stream.
package handlers

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edulead/enquirydesk/internal/apiclient"
	"github.com/edulead/enquirydesk/internal/domain"
	"github.com/edulead/enquirydesk/internal/http/middleware"
	"github.com/edulead/enquirydesk/internal/services"
	"github.com/edulead/enquirydesk/internal/store"
	"github.com/edulead/enquirydesk/internal/utils"
)

// maxUpload caps a single attachment.
const maxUpload = 5 << 20

// ResourceService is the coordinator contract consumed by ResourceHandler.
//
// Implementations must be safe for concurrent use. Every method returns the
// slice as it stood after the intent settled.
type ResourceService[T domain.Record] interface {
	State() store.State[T]
	List(ctx context.Context, p services.ListParams) (services.Result[T], error)
	Get(ctx context.Context, id string) (services.Result[T], error)
	Count(ctx context.Context) (services.Result[T], error)
	Create(ctx context.Context, sub services.Submission) (services.Result[T], error)
	Update(ctx context.Context, id string, sub services.Submission) (services.Result[T], error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) (services.Result[T], error)
	Delete(ctx context.Context, id string, hard bool) (services.Result[T], error)
	ClearError() store.State[T]
}

// ResourceOptions tunes a ResourceHandler.
type ResourceOptions struct {
	// RequireAuth rejects requests that carry no bearer token.
	RequireAuth  bool
	DefaultLimit int
	MaxLimit     int
}

// ResourceHandler serves one collection.
type ResourceHandler[T domain.Record] struct {
	svc  ResourceService[T]
	opts ResourceOptions
}

// NewResource binds svc.
func NewResource[T domain.Record](svc ResourceService[T], opts ResourceOptions) *ResourceHandler[T] {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	return &ResourceHandler[T]{svc: svc, opts: opts}
}

// Mount registers the collection's routes on g (already scoped to /{r}).
func (h *ResourceHandler[T]) Mount(g *gin.RouterGroup) {
	if h.opts.RequireAuth {
		g.Use(requireBearer)
	}
	g.GET("", h.List)
	g.GET("/state", h.State)
	g.GET("/count", h.Count)
	g.POST("", h.Create)
	g.POST("/clear-error", h.ClearError)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PATCH("/:id/status", h.UpdateStatus)
	g.DELETE("/:id", h.Delete)
}

func requireBearer(c *gin.Context) {
	if !middleware.HasBearer(c) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
		return
	}
	c.Next()
}

//
// DTOs
//

// StatusRequest is the payload of a status change.
type StatusRequest struct {
	Status domain.Status `json:"status" form:"status" binding:"required,oneof=new active blocked deleted" example:"active"`
}

//
// Helpers
//

// clampPagination parses and bounds page and limit query params.
func (h *ResourceHandler[T]) clampPagination(c *gin.Context) services.ListParams {
	page, limit := utils.ParsePage(c.Query("page"), c.Query("limit"), h.opts.DefaultLimit, h.opts.MaxLimit)
	return services.ListParams{Page: page, Limit: limit}
}

// bindSubmission reads a JSON, urlencoded or multipart body into a Submission.
func bindSubmission(c *gin.Context) (services.Submission, error) {
	sub := services.Submission{Fields: map[string]string{}, OperatorID: middleware.OperatorID(c)}
	if key, ok := middleware.GetIdempotencyKey(c); ok {
		sub.IdempotencyKey = key
	}

	ct := c.ContentType()
	switch {
	case ct == gin.MIMEMultipartPOSTForm:
		form, err := c.MultipartForm()
		if err != nil {
			return sub, fmt.Errorf("invalid multipart body: %w", err)
		}
		for k, vs := range form.Value {
			if len(vs) > 0 {
				sub.Fields[k] = vs[0]
			}
		}
		for field, fhs := range form.File {
			for _, fh := range fhs {
				f, err := readUpload(field, fh)
				if err != nil {
					return sub, err
				}
				sub.Files = append(sub.Files, f)
			}
		}
	case ct == gin.MIMEPOSTForm:
		if err := c.Request.ParseForm(); err != nil {
			return sub, fmt.Errorf("invalid form body: %w", err)
		}
		for k, vs := range c.Request.PostForm {
			if len(vs) > 0 {
				sub.Fields[k] = vs[0]
			}
		}
	default:
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			return sub, fmt.Errorf("invalid JSON body")
		}
		for k, v := range body {
			switch x := v.(type) {
			case nil:
			case string:
				sub.Fields[k] = x
			case float64, bool:
				sub.Fields[k] = fmt.Sprint(x)
			default:
				return sub, fmt.Errorf("field %q must be a scalar", k)
			}
		}
	}
	return sub, nil
}

func readUpload(field string, fh *multipart.FileHeader) (apiclient.File, error) {
	if fh.Size > maxUpload {
		return apiclient.File{}, fmt.Errorf("%s exceeds %d bytes", fh.Filename, maxUpload)
	}
	f, err := fh.Open()
	if err != nil {
		return apiclient.File{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUpload+1))
	if err != nil {
		return apiclient.File{}, err
	}
	return apiclient.File{
		Field:       field,
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func respond[T domain.Record](c *gin.Context, status int, res services.Result[T], err error) {
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, status, res)
}

//
// Handlers
//

// State godoc
// @Summary     Slice snapshot
// @Description Returns the gateway's current view of the collection without calling upstream.
// @Tags        Resources
// @Produce     json
// @Param       resource  path  string  true  "Collection"  Enums(users,enquiries,followups,contacts,services)
// @Success     200  {object}  map[string]any
// @Router      /{resource}/state [get]
func (h *ResourceHandler[T]) State(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.State())
}

// List godoc
// @Summary     List a page
// @Description Fetches a page from upstream and replaces the listed items.
// @Tags        Resources
// @Produce     json
// @Param       resource  path   string  true   "Collection"
// @Param       page      query  int     false  "Page number"     minimum(1) default(1)
// @Param       limit     query  int     false  "Items per page"  minimum(1) maximum(100) default(10)
// @Success     200  {object}  map[string]any
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unavailable"
// @Router      /{resource} [get]
func (h *ResourceHandler[T]) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), h.clampPagination(c))
	respond(c, http.StatusOK, res, err)
}

// Count godoc
// @Summary     Refresh the total
// @Tags        Resources
// @Produce     json
// @Param       resource  path  string  true  "Collection"
// @Success     200  {object}  map[string]any
// @Router      /{resource}/count [get]
func (h *ResourceHandler[T]) Count(c *gin.Context) {
	res, err := h.svc.Count(c.Request.Context())
	respond(c, http.StatusOK, res, err)
}

// Get godoc
// @Summary     Load one record
// @Tags        Resources
// @Produce     json
// @Param       resource  path  string  true  "Collection"
// @Param       id        path  string  true  "Record id"
// @Success     200  {object}  map[string]any
// @Failure     404  {object}  handlers.ErrorResponse  "Rejected by upstream"
// @Router      /{resource}/{id} [get]
func (h *ResourceHandler[T]) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, res, err)
}

// Create godoc
// @Summary     Create a record
// @Description Validates and submits a new record. Send Idempotency-Key to make double submits safe.
// @Tags        Resources
// @Accept      json,mpfd,x-www-form-urlencoded
// @Produce     json
// @Param       resource         path    string  true   "Collection"
// @Param       Idempotency-Key  header  string  false  "Submission key"
// @Success     201  {object}  map[string]any
// @Success     200  {object}  map[string]any  "Replayed submission"
// @Failure     409  {object}  handlers.ErrorResponse  "Same key still in flight"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /{resource} [post]
func (h *ResourceHandler[T]) Create(c *gin.Context) {
	sub, err := bindSubmission(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	res, err := h.svc.Create(c.Request.Context(), sub)
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	respond(c, status, res, err)
}

// Update godoc
// @Summary     Edit a record
// @Tags        Resources
// @Accept      json,mpfd,x-www-form-urlencoded
// @Produce     json
// @Param       resource  path  string  true  "Collection"
// @Param       id        path  string  true  "Record id"
// @Success     200  {object}  map[string]any
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /{resource}/{id} [put]
func (h *ResourceHandler[T]) Update(c *gin.Context) {
	sub, err := bindSubmission(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	res, err := h.svc.Update(c.Request.Context(), c.Param("id"), sub)
	respond(c, http.StatusOK, res, err)
}

// UpdateStatus godoc
// @Summary     Change status
// @Tags        Resources
// @Accept      json
// @Produce     json
// @Param       resource  path  string                   true  "Collection"
// @Param       id        path  string                   true  "Record id"
// @Param       body      body  handlers.StatusRequest   true  "New status"
// @Success     200  {object}  map[string]any
// @Failure     422  {object}  handlers.ErrorResponse  "Unknown status"
// @Router      /{resource}/{id}/status [patch]
func (h *ResourceHandler[T]) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBind(&req); err != nil {
		if ve := services.BindingError(err); ve != nil {
			failErr(c, ve)
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body")
		return
	}
	res, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	respond(c, http.StatusOK, res, err)
}

// Delete godoc
// @Summary     Delete a record
// @Tags        Resources
// @Produce     json
// @Param       resource  path   string  true   "Collection"
// @Param       id        path   string  true   "Record id"
// @Param       hard      query  bool    false  "Purge instead of soft delete"
// @Success     200  {object}  map[string]any
// @Router      /{resource}/{id} [delete]
func (h *ResourceHandler[T]) Delete(c *gin.Context) {
	hard := c.Query("hard") == "true" || c.Query("hard") == "1"
	res, err := h.svc.Delete(c.Request.Context(), c.Param("id"), hard)
	respond(c, http.StatusOK, res, err)
}

// ClearError godoc
// @Summary     Dismiss the last error
// @Tags        Resources
// @Produce     json
// @Param       resource  path  string  true  "Collection"
// @Success     200  {object}  map[string]any
// @Router      /{resource}/clear-error [post]
func (h *ResourceHandler[T]) ClearError(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.ClearError())
}
