// Enquiry notification handlers.
//
//   - GET  /enquiries/notifications              (unseen set and counter)
//   - POST /enquiries/notifications/refresh      (re-fetch the REST snapshot)
//   - POST /enquiries/notifications/read-all     (mark every entry read)
//   - POST /enquiries/notifications/{id}/open    (move the enquiry to active)
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edulead/enquirydesk/internal/domain"
	"github.com/edulead/enquirydesk/internal/services"
	"github.com/edulead/enquirydesk/internal/store"
)

// NotificationService is the enquiry coordinator's notification contract.
type NotificationService interface {
	Notifications() store.EnquiryState
	FetchNewCount(ctx context.Context) (store.EnquiryState, error)
	MarkAllRead() store.EnquiryState
	OpenNotification(ctx context.Context, id string) (services.Result[domain.Enquiry], error)
}

// NotificationsResponse is the notification bell's view of the enquiry slice.
type NotificationsResponse struct {
	NewEnquiries []domain.UnseenNotification `json:"newEnquiries"`
	// NewCount is the upstream's unseen counter; it ignores read flags.
	NewCount int64 `json:"newCount" example:"3"`
	// Unread counts entries not yet marked read.
	Unread int `json:"unread" example:"1"`
}

func notificationsView(s store.EnquiryState) NotificationsResponse {
	unread := 0
	for _, n := range s.NewEnquiries {
		if !n.Read {
			unread++
		}
	}
	entries := s.NewEnquiries
	if entries == nil {
		entries = []domain.UnseenNotification{}
	}
	return NotificationsResponse{NewEnquiries: entries, NewCount: s.NewCount, Unread: unread}
}

// NotificationHandler serves the enquiry notification bell.
type NotificationHandler struct {
	svc NotificationService
}

// NewNotifications binds svc.
func NewNotifications(svc NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// Mount registers the routes on g (scoped to /enquiries/notifications).
func (h *NotificationHandler) Mount(g *gin.RouterGroup) {
	g.GET("", h.Get)
	g.POST("/refresh", h.Refresh)
	g.POST("/read-all", h.ReadAll)
	g.POST("/:id/open", h.Open)
}

// Get godoc
// @Summary     Unseen enquiries
// @Tags        Notifications
// @Produce     json
// @Success     200  {object}  handlers.NotificationsResponse
// @Router      /enquiries/notifications [get]
func (h *NotificationHandler) Get(c *gin.Context) {
	ok(c, http.StatusOK, notificationsView(h.svc.Notifications()))
}

// Refresh godoc
// @Summary     Re-fetch the unseen snapshot
// @Tags        Notifications
// @Produce     json
// @Success     200  {object}  handlers.NotificationsResponse
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unavailable"
// @Router      /enquiries/notifications/refresh [post]
func (h *NotificationHandler) Refresh(c *gin.Context) {
	st, err := h.svc.FetchNewCount(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, notificationsView(st))
}

// ReadAll godoc
// @Summary     Mark all read
// @Description Flags every unseen entry as read. The counter is unchanged.
// @Tags        Notifications
// @Produce     json
// @Success     200  {object}  handlers.NotificationsResponse
// @Router      /enquiries/notifications/read-all [post]
func (h *NotificationHandler) ReadAll(c *gin.Context) {
	ok(c, http.StatusOK, notificationsView(h.svc.MarkAllRead()))
}

// Open godoc
// @Summary     Open a notification
// @Description Moves the enquiry to active; its unseen entry is removed once the update lands.
// @Tags        Notifications
// @Produce     json
// @Param       id  path  string  true  "Enquiry id"
// @Success     200  {object}  handlers.NotificationsResponse
// @Router      /enquiries/notifications/{id}/open [post]
func (h *NotificationHandler) Open(c *gin.Context) {
	if _, err := h.svc.OpenNotification(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, notificationsView(h.svc.Notifications()))
}
