// Package domain defines the records the dashboard manages (users, enquiries,
// follow-ups, contacts, services) and the unseen-enquiry notification entry.
// The upstream API is authoritative for ids and timestamps; these types only
// mirror its JSON shape.
package domain

import "time"

// Status is the lifecycle tag shared by every dashboard record. Each domain
// uses a subset, but the set itself is closed.
type Status string

const (
	StatusNew     Status = "new"
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
	StatusDeleted Status = "deleted"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusActive, StatusBlocked, StatusDeleted:
		return true
	}
	return false
}

// Rank orders statuses along the lifecycle (new < active < blocked < deleted).
// Unknown statuses rank last.
func (s Status) Rank() int {
	switch s {
	case StatusNew:
		return 0
	case StatusActive:
		return 1
	case StatusBlocked:
		return 2
	case StatusDeleted:
		return 3
	}
	return 4
}

// Record is implemented by every entity held in a store slice.
type Record interface {
	RecordID() string
}

// Timestamps are server-assigned creation and last-update instants.
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// User is a dashboard operator account.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	Role   string `json:"role,omitempty"`
	Status Status `json:"status"`
	Timestamps
}

func (u User) RecordID() string { return u.ID }

// Enquiry is a prospective student lead. EnqNo is the short human-facing
// reference code shown in notifications.
type Enquiry struct {
	ID        string `json:"id"`
	EnqNo     string `json:"enqNo"`
	FName     string `json:"fName"`
	LName     string `json:"lName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Course    string `json:"course,omitempty"`
	Country   string `json:"country,omitempty"`
	Message   string `json:"message,omitempty"`
	Status    Status `json:"status"`
	FollowUps int    `json:"followUps,omitempty"`
	Timestamps
}

func (e Enquiry) RecordID() string { return e.ID }

// FollowUp is a scheduled touch-point on an enquiry.
type FollowUp struct {
	ID        string     `json:"id"`
	EnquiryID string     `json:"enquiryId"`
	Note      string     `json:"note"`
	NextDate  *time.Time `json:"nextDate,omitempty"`
	Status    Status     `json:"status"`
	Timestamps
}

func (f FollowUp) RecordID() string { return f.ID }

// Contact is a message left through the public contact form.
type Contact struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
	Status  Status `json:"status"`
	Timestamps
}

func (c Contact) RecordID() string { return c.ID }

// Service is an offering listed on the public site. Image holds the URL the
// upstream assigned to the uploaded attachment.
type Service struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Status      Status `json:"status"`
	Timestamps
}

func (s Service) RecordID() string { return s.ID }

// UnseenNotification is an enquiry that no operator has acted on yet. Read is
// a local flag only; the upstream never stores it.
type UnseenNotification struct {
	ID        string    `json:"id"`
	FName     string    `json:"fName"`
	EnqNo     string    `json:"enqNo"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

// NotificationFromEnquiry builds the unseen entry for an enquiry.
func NotificationFromEnquiry(e Enquiry) UnseenNotification {
	return UnseenNotification{
		ID:        e.ID,
		FName:     e.FName,
		EnqNo:     e.EnqNo,
		CreatedAt: e.CreatedAt,
	}
}
