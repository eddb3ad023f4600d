package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKnownZip(t *testing.T) {
	reg, err := NewRegistry("")
	require.NoError(t, err)

	r, ok := reg.Current().Resolve("33139")
	require.True(t, ok)
	assert.Equal(t, Region{County: "Miami-Dade", State: "FL"}, r)

	_, ok = reg.Current().Resolve("99999")
	assert.False(t, ok)
}

func TestCoversCountyAndState(t *testing.T) {
	r := Region{County: "Miami-Dade", State: "FL"}

	assert.True(t, r.Covers([]string{"fl:miami-dade"}))
	assert.True(t, r.Covers([]string{"GA", " fl "}))
	assert.False(t, r.Covers([]string{"FL:Broward", "GA"}))
}

func TestParseRejectsMalformedZip(t *testing.T) {
	_, err := Parse([]byte(`zips: [{zip: "331", county: X, state: FL}]`))
	require.Error(t, err)
}
