package realtime

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/edulead/enquirydesk/internal/apiclient"
)

// Toast levels.
const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Toast is a transient message for the dashboard.
type Toast struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// Toaster turns settled intents into toast events.
type Toaster struct {
	hub  *Hub
	lang language.Tag
}

// NewToaster publishes toasts on hub using English title casing.
func NewToaster(hub *Hub) *Toaster {
	return &Toaster{hub: hub, lang: language.English}
}

// A Caser is stateful, so one is built per message.
func (t *Toaster) titled(s string) string {
	return cases.Title(t.lang).String(s)
}

var pastTense = map[string]string{
	"load":   "loaded",
	"create": "created",
	"update": "updated",
	"status": "status updated",
	"delete": "deleted",
}

var gerund = map[string]string{
	"load":   "load",
	"create": "create",
	"update": "update",
	"status": "update status of",
	"delete": "delete",
}

// Success publishes "<Label> <verb>ed".
func (t *Toaster) Success(label, verb string) {
	done, ok := pastTense[verb]
	if !ok {
		done = verb
	}
	title := t.titled(label)
	t.hub.Publish(EventToast, Toast{
		Level:   LevelSuccess,
		Title:   title,
		Message: title + " " + done,
	})
}

// Failure publishes the normalised upstream error.
func (t *Toaster) Failure(label, verb string, info apiclient.ErrorInfo) {
	what, ok := gerund[verb]
	if !ok {
		what = verb
	}
	t.hub.Publish(EventToast, Toast{
		Level:   LevelError,
		Title:   "Could not " + what + " " + label,
		Message: info.Message,
		Status:  info.Status,
	})
}
