// Package diff computes field-level changes between two entity snapshots.
//
// The computation is pure: registry enumeration drives which attributes are
// examined, formatted display strings are compared for equality, and the
// output preserves enumeration order. Values that format identically are not
// a change, which means a numeric field moving from 3 to 3.0 is a no-op when
// both render "3", and a relation repointed at an identically-labelled entity
// is not detected. That second case is an accepted limitation of string-based
// comparison, not something this package special-cases.
package diff

import (
	"attest/internal/trail/models"
	"attest/internal/trail/registry"
)

// Skipped records an attribute dropped from a diff because formatting or
// relation resolution failed. The capture path logs these; they never abort
// the diff (partial capture beats losing the audit entry).
type Skipped struct {
	Attribute string
	Err       error
}

// Compute diffs two snapshots of one entity against its registered attribute
// table. A nil before is the create baseline; a nil after is the delete
// baseline. Unregistered attributes present on either snapshot are ignored.
func Compute(entityType string, before, after models.Snapshot, reg *registry.Registry) ([]models.AuditLogChange, []Skipped) {
	attrs := reg.Attributes(entityType)
	if len(attrs) == 0 {
		return nil, nil
	}

	var changes []models.AuditLogChange
	var skipped []Skipped

	for _, attr := range attrs {
		oldValue, err := formatSide(attr, before)
		if err != nil {
			skipped = append(skipped, Skipped{Attribute: attr.Name, Err: err})
			continue
		}
		newValue, err := formatSide(attr, after)
		if err != nil {
			skipped = append(skipped, Skipped{Attribute: attr.Name, Err: err})
			continue
		}
		if oldValue == newValue {
			continue
		}
		changes = append(changes, models.AuditLogChange{
			Position:      len(changes),
			AttributeName: attr.Name,
			ModuleName:    attr.Module,
			OldValue:      oldValue,
			NewValue:      newValue,
		})
	}
	return changes, skipped
}

func formatSide(attr registry.Attribute, snap models.Snapshot) (string, error) {
	if snap == nil {
		return "", nil
	}
	value, ok := snap[attr.Name]
	if !ok {
		return "", nil
	}
	return attr.Format(value)
}
