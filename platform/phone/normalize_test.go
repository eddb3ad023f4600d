package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeE164(t *testing.T) {
	cases := map[string]string{
		"(305) 555-0142":  "+13055550142",
		"+1 305 555 0142": "+13055550142",
		"  not a phone ":  "not a phone",
		"":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeE164(in), in)
	}
}

func TestNormalizeReportsValidity(t *testing.T) {
	out, ok := Normalize("305-555-0142", DefaultRegion)
	assert.True(t, ok)
	assert.Equal(t, "+13055550142", out)

	out, ok = Normalize(" 12 ", DefaultRegion)
	assert.False(t, ok)
	assert.Equal(t, "12", out)
}
