// Package models defines the audit-trail records and query types.
//
// AuditLog and AuditLogChange are append-only: created once, inside the same
// transaction as the business mutation they document, and never updated or
// deleted afterwards.
package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "attest/pkg/domain-errors"
)

// Operation classifies the mutation a log documents.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether the operation is one of the three known kinds.
func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Snapshot is a fully materialized attribute-name -> raw-value view of a
// business entity at one point in time. A nil snapshot is the empty baseline
// used for the missing side of a create or delete.
type Snapshot map[string]any

// Snapshotter is the capability a business entity implements to participate
// in audit capture: it identifies itself and materializes its tracked state.
type Snapshotter interface {
	EntityType() string
	EntityID() string
	ReferenceNumber() string
	Snapshot() Snapshot
}

// AuditLog is the immutable header for one mutation event.
//
// Invariants:
//   - created only when the diff produced at least one change
//   - AttributeCount always equals the number of owned change rows
//   - ReferenceNumber is a point-in-time capture and is never re-resolved
type AuditLog struct {
	ID              uuid.UUID `json:"id"`
	EntityType      string    `json:"entity_type"`
	EntityID        string    `json:"entity_id"`
	ReferenceNumber string    `json:"reference_number"`
	UserName        string    `json:"user_name,omitempty"`
	ClientIP        string    `json:"client_ip,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
	Operation       Operation `json:"type"`
	AttributeCount  int       `json:"attribute_count"`
	Checksum        string    `json:"checksum"`
	CreatedAt       time.Time `json:"created_at"`
}

// AuditLogChange is one field-level diff row owned by exactly one AuditLog.
// Position records registry enumeration order, which is the canonical
// ordering for reads.
type AuditLogChange struct {
	ID            uuid.UUID `json:"id"`
	LogID         uuid.UUID `json:"-"`
	Position      int       `json:"-"`
	AttributeName string    `json:"attribute_name"`
	ModuleName    string    `json:"module_name"`
	OldValue      string    `json:"old_value"`
	NewValue      string    `json:"new_value"`
}

// -----------------------------------------------------------------------------
// Query types
// -----------------------------------------------------------------------------

const (
	DefaultLogLimit    = 20
	DefaultChangeLimit = 10
)

// ListFilter selects a page of headers. Search matches case-insensitively as
// a substring against entity type, reference number and user name.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// SortField names an AuditLogChange column eligible for detail sorting.
type SortField string

const (
	SortByAttributeName SortField = "attributeName"
	SortByModuleName    SortField = "moduleName"
	SortByOldValue      SortField = "oldValue"
	SortByNewValue      SortField = "newValue"
)

// ParseSortField validates a caller-supplied sort field. Unknown values
// return false; callers fall back to canonical order.
func ParseSortField(raw string) (SortField, bool) {
	switch SortField(raw) {
	case SortByAttributeName, SortByModuleName, SortByOldValue, SortByNewValue:
		return SortField(raw), true
	}
	return "", false
}

// SortDirection is the requested direction. Empty means "no sort": canonical
// insertion order. The UI's tri-state toggle sends asc, then desc, then
// nothing at all.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
	SortNone SortDirection = ""
)

// ChangeFilter selects and orders a page of change rows.
type ChangeFilter struct {
	Limit     int
	Offset    int
	SortField SortField
	Direction SortDirection
}

// Sorted reports whether the filter requests an explicit ordering.
func (f ChangeFilter) Sorted() bool {
	return f.SortField != "" && (f.Direction == SortAsc || f.Direction == SortDesc)
}

// LogPage is one page of headers plus totals.
type LogPage struct {
	Logs    []AuditLog `json:"data"`
	Total   int        `json:"total"`
	Limit   int        `json:"limit"`
	Offset  int        `json:"offset"`
	HasMore bool       `json:"hasMore"`
}

// Pagination is the computed page metadata for a detail response.
type Pagination struct {
	Total       int  `json:"total"`
	Limit       int  `json:"limit"`
	Offset      int  `json:"offset"`
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	HasMore     bool `json:"hasMore"`
}

// NewPagination derives page metadata from totals and the applied window.
func NewPagination(total, limit, offset, pageLen int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	currentPage := 1
	if limit > 0 {
		currentPage = offset/limit + 1
	}
	return Pagination{
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		HasMore:     offset+pageLen < total,
	}
}

// LogDetail is one header plus a page of its changes.
type LogDetail struct {
	Log        AuditLog         `json:"log"`
	Changes    []AuditLogChange `json:"changes"`
	Pagination Pagination       `json:"pagination"`
}

// ChainReport is the outcome of a tamper-evidence verification walk.
type ChainReport struct {
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Records    int        `json:"records"`
	Intact     bool       `json:"intact"`
	BrokenAt   *uuid.UUID `json:"broken_at,omitempty"`
}

// ValidateOperation returns a coded error for unknown operations.
func ValidateOperation(op Operation) error {
	if !op.Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown operation kind")
	}
	return nil
}
