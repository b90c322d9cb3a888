package store

import (
	"github.com/edulead/enquirydesk/internal/apiclient"
	"github.com/edulead/enquirydesk/internal/domain"
)

// Action is one intent or outcome consumed by a Store. Apply must be pure.
type Action[S any] interface {
	Apply(S) S
	Type() string
}

// Begin marks an intent of Kind as dispatched.
type Begin[T domain.Record] struct{ Kind Kind }

func (a Begin[T]) Apply(s State[T]) State[T] { return s.Begin(a.Kind) }
func (a Begin[T]) Type() string              { return string(a.Kind) + "/begin" }

// ListSucceeded carries a fetched page and the server total.
type ListSucceeded[T domain.Record] struct {
	Records []T
	Total   int64
}

func (a ListSucceeded[T]) Apply(s State[T]) State[T] { return s.ListSucceeded(a.Records, a.Total) }
func (a ListSucceeded[T]) Type() string              { return "list/succeeded" }

// Failed is the terminal failure of an intent of Kind.
type Failed[T domain.Record] struct {
	Kind Kind
	Info apiclient.ErrorInfo
}

func (a Failed[T]) Apply(s State[T]) State[T] { return s.Failed(a.Kind, a.Info) }
func (a Failed[T]) Type() string              { return string(a.Kind) + "/failed" }

// CreateSucceeded carries the created record.
type CreateSucceeded[T domain.Record] struct{ Record T }

func (a CreateSucceeded[T]) Apply(s State[T]) State[T] { return s.CreateSucceeded(a.Record) }
func (a CreateSucceeded[T]) Type() string              { return "create/succeeded" }

// UpdateSucceeded carries the updated record (edits and status changes).
type UpdateSucceeded[T domain.Record] struct{ Record T }

func (a UpdateSucceeded[T]) Apply(s State[T]) State[T] { return s.UpdateSucceeded(a.Record) }
func (a UpdateSucceeded[T]) Type() string              { return "update/succeeded" }

// DeleteSucceeded carries the id of the deleted record.
type DeleteSucceeded[T domain.Record] struct{ ID string }

func (a DeleteSucceeded[T]) Apply(s State[T]) State[T] { return s.DeleteSucceeded(a.ID) }
func (a DeleteSucceeded[T]) Type() string              { return "delete/succeeded" }

// GetSucceeded carries a single fetched record.
type GetSucceeded[T domain.Record] struct{ Record T }

func (a GetSucceeded[T]) Apply(s State[T]) State[T] { return s.GetSucceeded(a.Record) }
func (a GetSucceeded[T]) Type() string              { return "get/succeeded" }

// CountSucceeded carries a server-reported total.
type CountSucceeded[T domain.Record] struct{ Total int64 }

func (a CountSucceeded[T]) Apply(s State[T]) State[T] { return s.CountSucceeded(a.Total) }
func (a CountSucceeded[T]) Type() string              { return "count/succeeded" }

// ClearError drops the last error.
type ClearError[T domain.Record] struct{}

func (ClearError[T]) Apply(s State[T]) State[T] { return s.ClearError() }
func (ClearError[T]) Type() string              { return "error/cleared" }
