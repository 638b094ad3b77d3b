package diff

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/trail/models"
	"attest/internal/trail/registry"
)

func riskRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.MustRegister("Risk",
		registry.Attribute{Name: "title", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "likelihood", Module: "Scoring", Format: registry.Number()},
		registry.Attribute{Name: "impact", Module: "Scoring", Format: registry.Number()},
	)
	return reg
}

func TestComputeUpdateEmitsOnlyChangedAttributes(t *testing.T) {
	reg := riskRegistry(t)

	before := models.Snapshot{"title": "Vendor outage", "likelihood": 3, "impact": 4}
	after := models.Snapshot{"title": "Vendor outage", "likelihood": 4, "impact": 4}

	changes, skipped := Compute("Risk", before, after, reg)
	require.Empty(t, skipped)
	require.Len(t, changes, 1)
	assert.Equal(t, "likelihood", changes[0].AttributeName)
	assert.Equal(t, "Scoring", changes[0].ModuleName)
	assert.Equal(t, "3", changes[0].OldValue)
	assert.Equal(t, "4", changes[0].NewValue)
	assert.Equal(t, 0, changes[0].Position)
}

func TestComputeCreateUsesEmptyBaseline(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("Control",
		registry.Attribute{Name: "name", Module: "General", Format: registry.Text()},
		registry.Attribute{Name: "status", Module: "Assessment", Format: registry.Text()},
		registry.Attribute{Name: "description", Module: "General", Format: registry.Text()},
	)

	after := models.Snapshot{"name": "Information Security Policy", "status": "Compliant"}

	changes, skipped := Compute("Control", nil, after, reg)
	require.Empty(t, skipped)
	require.Len(t, changes, 2, "absent attributes format empty on both sides and drop out")
	for _, change := range changes {
		assert.Equal(t, "", change.OldValue, "create has an all-empty old side")
		assert.NotEqual(t, "", change.NewValue)
	}
}

func TestComputeDeleteUsesEmptyResult(t *testing.T) {
	reg := riskRegistry(t)

	before := models.Snapshot{"title": "Vendor outage", "likelihood": 3, "impact": 4}

	changes, skipped := Compute("Risk", before, nil, reg)
	require.Empty(t, skipped)
	require.Len(t, changes, 3)
	for _, change := range changes {
		assert.Equal(t, "", change.NewValue, "delete has an all-empty new side")
	}
}

func TestComputeFormattedEqualityIsNoop(t *testing.T) {
	reg := riskRegistry(t)

	// 3 and 3.0 both render "3", so this is not a change.
	before := models.Snapshot{"likelihood": 3}
	after := models.Snapshot{"likelihood": 3.0}

	changes, skipped := Compute("Risk", before, after, reg)
	assert.Empty(t, skipped)
	assert.Empty(t, changes)
}

func TestComputeIgnoresUnregisteredAttributes(t *testing.T) {
	reg := riskRegistry(t)

	before := models.Snapshot{"internalNotes": "old"}
	after := models.Snapshot{"internalNotes": "new"}

	changes, skipped := Compute("Risk", before, after, reg)
	assert.Empty(t, skipped)
	assert.Empty(t, changes, "attributes outside the allow-list are never tracked")
}

func TestComputeSkipsFailingAttributeAndContinues(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("Control",
		registry.Attribute{Name: "owner", Module: "Ownership", Format: registry.Relation(
			func(string) (string, error) { return "", errors.New("directory unavailable") },
		)},
		registry.Attribute{Name: "name", Module: "General", Format: registry.Text()},
	)

	before := models.Snapshot{"owner": "u-1", "name": "Old name"}
	after := models.Snapshot{"owner": "u-2", "name": "New name"}

	changes, skipped := Compute("Control", before, after, reg)
	require.Len(t, skipped, 1)
	assert.Equal(t, "owner", skipped[0].Attribute)
	require.Len(t, changes, 1, "the failing attribute drops, the rest survive")
	assert.Equal(t, "name", changes[0].AttributeName)
	assert.Equal(t, 0, changes[0].Position, "positions are dense over emitted changes")
}

func TestComputePreservesRegistryOrder(t *testing.T) {
	reg := riskRegistry(t)

	before := models.Snapshot{"title": "a", "likelihood": 1, "impact": 1}
	after := models.Snapshot{"title": "b", "likelihood": 2, "impact": 2}

	changes, _ := Compute("Risk", before, after, reg)
	require.Len(t, changes, 3)
	assert.Equal(t, "title", changes[0].AttributeName)
	assert.Equal(t, "likelihood", changes[1].AttributeName)
	assert.Equal(t, "impact", changes[2].AttributeName)
	for i, change := range changes {
		assert.Equal(t, i, change.Position)
	}
}

func TestComputeUnknownEntityTypeTracksNothing(t *testing.T) {
	reg := riskRegistry(t)

	changes, skipped := Compute("Widget", models.Snapshot{"a": 1}, models.Snapshot{"a": 2}, reg)
	assert.Empty(t, changes)
	assert.Empty(t, skipped)
}
