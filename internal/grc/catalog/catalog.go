// Package catalog declares the tracked attribute tables for the GRC entity
// types. Each table is an explicit allow-list: a field absent here is never
// audited, no matter what the snapshot carries.
package catalog

import (
	"attest/internal/trail/registry"
)

// Entity type labels as they appear on audit headers.
const (
	EntityControl   = "Control"
	EntityRisk      = "Risk"
	EntityEvidence  = "Evidence"
	EntityAsset     = "Asset"
	EntityFramework = "Framework"
	EntityUser      = "User"
	EntityAccount   = "Account"
)

// Directory resolves relation-typed attribute values to human-readable
// labels. Resolution failures surface as skipped attributes in the diff, so
// implementations should only fail when the referenced record is truly gone.
type Directory interface {
	ResolveUser(id string) (string, error)
	ResolveFramework(id string) (string, error)
}

var statusLabels = map[string]string{
	"compliant":     "Compliant",
	"non_compliant": "Non-Compliant",
	"partial":       "Partially Compliant",
	"not_assessed":  "Not Assessed",
	"not_apply":     "Not Applicable",
}

var severityLabels = map[string]string{
	"low":      "Low",
	"medium":   "Medium",
	"high":     "High",
	"critical": "Critical",
}

var evidenceStatusLabels = map[string]string{
	"draft":    "Draft",
	"active":   "Active",
	"expired":  "Expired",
	"archived": "Archived",
}

const dateLayout = "2006-01-02"

// Register installs every GRC attribute table on the registry. Declaration
// order per entity is the canonical diff and display order.
func Register(reg *registry.Registry, dir Directory) {
	reg.MustRegister(EntityControl,
		registry.Attribute{Name: "code", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "name", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "description", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "status", Module: "Assessment", Format: registry.Label(statusLabels)},
		registry.Attribute{Name: "owner", Module: "Ownership", Format: registry.Relation(dir.ResolveUser)},
		registry.Attribute{Name: "framework", Module: "Mapping", Format: registry.Relation(dir.ResolveFramework)},
		registry.Attribute{Name: "reviewDate", Module: "Assessment", Format: registry.Date(dateLayout)},
	)

	reg.MustRegister(EntityRisk,
		registry.Attribute{Name: "title", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "description", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "likelihood", Module: "Scoring", Format: registry.Number()},
		registry.Attribute{Name: "impact", Module: "Scoring", Format: registry.Number()},
		registry.Attribute{Name: "severity", Module: "Scoring", Format: registry.Label(severityLabels)},
		registry.Attribute{Name: "owner", Module: "Ownership", Format: registry.Relation(dir.ResolveUser)},
		registry.Attribute{Name: "treatmentDue", Module: "Treatment", Format: registry.Date(dateLayout)},
		registry.Attribute{Name: "accepted", Module: "Treatment", Format: registry.Boolean()},
	)

	reg.MustRegister(EntityEvidence,
		registry.Attribute{Name: "name", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "description", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "status", Module: "Lifecycle", Format: registry.Label(evidenceStatusLabels)},
		registry.Attribute{Name: "collectedAt", Module: "Lifecycle", Format: registry.Date(dateLayout)},
		registry.Attribute{Name: "expiresAt", Module: "Lifecycle", Format: registry.Date(dateLayout)},
		registry.Attribute{Name: "owner", Module: "Ownership", Format: registry.Relation(dir.ResolveUser)},
	)

	reg.MustRegister(EntityAsset,
		registry.Attribute{Name: "name", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "category", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "criticality", Module: "Classification", Format: registry.Label(severityLabels)},
		registry.Attribute{Name: "owner", Module: "Ownership", Format: registry.Relation(dir.ResolveUser)},
		registry.Attribute{Name: "decommissioned", Module: "Lifecycle", Format: registry.Boolean()},
	)

	reg.MustRegister(EntityFramework,
		registry.Attribute{Name: "name", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "version", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "description", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "active", Module: "Lifecycle", Format: registry.Boolean()},
	)

	reg.MustRegister(EntityUser,
		registry.Attribute{Name: "displayName", Module: "Profile", Format: registry.Text()},
		registry.Attribute{Name: "email", Module: "Profile", Format: registry.Text()},
		registry.Attribute{Name: "role", Module: "Access", Format: registry.Text()},
		registry.Attribute{Name: "active", Module: "Access", Format: registry.Boolean()},
	)

	reg.MustRegister(EntityAccount,
		registry.Attribute{Name: "name", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "plan", Module: "Billing", Format: registry.Text()},
		registry.Attribute{Name: "seats", Module: "Billing", Format: registry.Number()},
		registry.Attribute{Name: "renewalDate", Module: "Billing", Format: registry.Date(dateLayout)},
	)
}

// StaticDirectory is a map-backed Directory for deployments that feed label
// tables at startup and for tests.
type StaticDirectory struct {
	Users      map[string]string
	Frameworks map[string]string
}

func (d StaticDirectory) ResolveUser(id string) (string, error) {
	return resolveFrom(d.Users, id)
}

func (d StaticDirectory) ResolveFramework(id string) (string, error) {
	return resolveFrom(d.Frameworks, id)
}

func resolveFrom(table map[string]string, id string) (string, error) {
	if label, ok := table[id]; ok {
		return label, nil
	}
	return "", &UnknownReferenceError{ID: id}
}

// UnknownReferenceError reports a relation target that no longer resolves.
type UnknownReferenceError struct {
	ID string
}

func (e *UnknownReferenceError) Error() string {
	return "unknown reference " + e.ID
}
