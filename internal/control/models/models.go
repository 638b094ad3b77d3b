// Package models defines the Control entity, the exemplar collaborator of
// the audit trail.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"attest/internal/grc/catalog"
	trailmodels "attest/internal/trail/models"
	dErrors "attest/pkg/domain-errors"
)

// Control statuses as stored. The audit catalog maps them to display labels.
const (
	StatusNotAssessed  = "not_assessed"
	StatusCompliant    = "compliant"
	StatusNonCompliant = "non_compliant"
	StatusPartial      = "partial"
	StatusNotApply     = "not_apply"
)

// Control is one compliance control.
type Control struct {
	ID          uuid.UUID  `json:"id"`
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	OwnerID     string     `json:"owner_id"`
	FrameworkID string     `json:"framework_id"`
	ReviewDate  *time.Time `json:"review_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EntityType implements the audit snapshot capability.
func (c *Control) EntityType() string { return catalog.EntityControl }

func (c *Control) EntityID() string { return c.ID.String() }

// ReferenceNumber is the control code as it reads at mutation time. The
// audit header keeps this as a point-in-time value.
func (c *Control) ReferenceNumber() string { return c.Code }

// Snapshot materializes the tracked state. Keys follow the attribute names
// registered in the catalog; anything else would be silently untracked.
func (c *Control) Snapshot() trailmodels.Snapshot {
	snap := trailmodels.Snapshot{
		"code":        c.Code,
		"name":        c.Name,
		"description": c.Description,
		"status":      c.Status,
		"owner":       c.OwnerID,
		"framework":   c.FrameworkID,
	}
	if c.ReviewDate != nil {
		snap["reviewDate"] = *c.ReviewDate
	}
	return snap
}

var validStatuses = map[string]bool{
	StatusNotAssessed:  true,
	StatusCompliant:    true,
	StatusNonCompliant: true,
	StatusPartial:      true,
	StatusNotApply:     true,
}

// Validate checks the fields a control needs before any write.
func (c *Control) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return dErrors.New(dErrors.CodeValidation, "control code is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "control name is required")
	}
	if !validStatuses[c.Status] {
		return dErrors.New(dErrors.CodeValidation, "unknown control status")
	}
	return nil
}
