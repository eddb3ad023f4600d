package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceFollowsLifecycle(t *testing.T) {
	now := time.Now()
	l := New(uuid.New(), "form", map[string]any{"a": "b"}, Attributes{}, now)

	require.NoError(t, l.Advance(StatusClassified, now))
	require.NoError(t, l.Advance(StatusMatched, now))
	require.NoError(t, l.Advance(StatusAssigned, now))
	require.NoError(t, l.Advance(StatusSynced, now))

	err := l.Advance(StatusClassified, now)
	assert.Error(t, err)
	assert.Equal(t, StatusSynced, l.Status)
}

func TestFailKeepsPartialState(t *testing.T) {
	now := time.Now()
	l := New(uuid.New(), "form", map[string]any{"zip": "33139"}, Attributes{ZipCode: "33139"}, now)
	l.ServiceCategory = "boat_maintenance"

	l.Fail(FailureNoVendor, "no vendor", now)

	assert.Equal(t, StatusFailed, l.Status)
	assert.Equal(t, "boat_maintenance", l.ServiceCategory)
	assert.Equal(t, "33139", l.RawPayload["zip"])
	assert.False(t, l.IsTerminal())
	assert.True(t, l.FailureReason.Reroutable())

	require.NoError(t, l.Advance(StatusClassified, now))
	assert.Empty(t, l.FailureReason)
}

func TestTerminalStates(t *testing.T) {
	now := time.Now()
	l := New(uuid.New(), "", nil, Attributes{}, now)
	l.Fail(FailureValidation, "missing zip_code", now)
	assert.True(t, l.IsTerminal())

	l.Fail(FailureSync, "crm rejected", now)
	assert.True(t, l.IsTerminal())

	l.Fail(FailureInternal, "boom", now)
	assert.False(t, l.IsTerminal())
}

func TestMappingAttributesUseClassifiedCategory(t *testing.T) {
	l := Lead{
		Attributes:      Attributes{FirstName: "John", ServiceCategory: "Boat Care", Extra: map[string]string{"x": "y"}},
		ServiceCategory: "boat_maintenance",
	}

	attrs := l.MappingAttributes()

	assert.Equal(t, "boat_maintenance", attrs[AttrServiceCategory])
	assert.Equal(t, "John", attrs[AttrFirstName])
	assert.NotContains(t, attrs, "x")
	assert.NotContains(t, attrs, AttrEmail)
}
