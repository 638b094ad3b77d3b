package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsBadTables(t *testing.T) {
	reg := New()

	assert.Error(t, reg.Register("", Attribute{Name: "name", Format: Text()}))
	assert.Error(t, reg.Register("Control", Attribute{Name: "", Format: Text()}))
	assert.Error(t, reg.Register("Control", Attribute{Name: "name", Format: nil}))

	require.NoError(t, reg.Register("Control", Attribute{Name: "name", Format: Text()}))
	assert.Error(t, reg.Register("Control", Attribute{Name: "name", Format: Text()}),
		"re-registering an entity type must fail")

	err := reg.Register("Risk",
		Attribute{Name: "title", Format: Text()},
		Attribute{Name: "title", Format: Text()},
	)
	assert.Error(t, err, "duplicate attribute names must fail")
}

func TestResolveUnregisteredMeansUntracked(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("Control",
		Attribute{Name: "name", Module: "General", Format: Text()},
	))

	_, ok := reg.Resolve("Control", "secretNotes")
	assert.False(t, ok, "unregistered attribute is not tracked, not an error")

	_, ok = reg.Resolve("Widget", "name")
	assert.False(t, ok, "unknown entity type is not tracked")

	attr, ok := reg.Resolve("Control", "name")
	require.True(t, ok)
	assert.Equal(t, "General", attr.Module)
}

func TestAttributesPreserveDeclarationOrder(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("Risk",
		Attribute{Name: "title", Format: Text()},
		Attribute{Name: "likelihood", Format: Number()},
		Attribute{Name: "impact", Format: Number()},
	))

	attrs := reg.Attributes("Risk")
	require.Len(t, attrs, 3)
	assert.Equal(t, "title", attrs[0].Name)
	assert.Equal(t, "likelihood", attrs[1].Name)
	assert.Equal(t, "impact", attrs[2].Name)
}

func TestTextFormatter(t *testing.T) {
	format := Text()

	got, err := format(nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = format("Information Security Policy")
	require.NoError(t, err)
	assert.Equal(t, "Information Security Policy", got)

	_, err = format(42)
	assert.Error(t, err)
}

func TestNumberFormatterWholeFloatsMatchIntegers(t *testing.T) {
	format := Number()

	fromInt, err := format(3)
	require.NoError(t, err)
	fromFloat, err := format(3.0)
	require.NoError(t, err)
	assert.Equal(t, fromInt, fromFloat, "3 and 3.0 must format identically")
	assert.Equal(t, "3", fromInt)

	got, err := format(2.5)
	require.NoError(t, err)
	assert.Equal(t, "2.5", got)
}

func TestBooleanFormatter(t *testing.T) {
	format := Boolean()

	got, err := format(true)
	require.NoError(t, err)
	assert.Equal(t, "Yes", got)

	got, err = format(false)
	require.NoError(t, err)
	assert.Equal(t, "No", got)

	got, err = format(nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestDateFormatter(t *testing.T) {
	format := Date("2006-01-02")

	got, err := format(time.Date(2026, 3, 15, 22, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", got)

	got, err = format(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "", got, "zero time reads as unset")

	got, err = format((*time.Time)(nil))
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestLabelFormatterFallsBackToCode(t *testing.T) {
	format := Label(map[string]string{"compliant": "Compliant"})

	got, err := format("compliant")
	require.NoError(t, err)
	assert.Equal(t, "Compliant", got)

	got, err = format("made_up_status")
	require.NoError(t, err)
	assert.Equal(t, "made_up_status", got, "unknown codes display as stored")
}

func TestRelationFormatter(t *testing.T) {
	format := Relation(func(id string) (string, error) {
		if id == "u-1" {
			return "Alice Ciso", nil
		}
		return "", errors.New("gone")
	})

	got, err := format("u-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice Ciso", got)

	got, err = format("")
	require.NoError(t, err)
	assert.Equal(t, "", got, "empty relation is an unset field, not a lookup")

	_, err = format("u-2")
	assert.Error(t, err, "resolution failure surfaces so the diff can skip")
}
