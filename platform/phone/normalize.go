// Package phone normalizes contact numbers taken from web forms.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is assumed for numbers written without a country code.
const DefaultRegion = "US"

// Normalize parses input in region and returns its E.164 form. When the
// number cannot be parsed or is not a valid number, the trimmed input is
// returned with ok false so the caller keeps what the visitor typed.
func Normalize(input, region string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}
	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return trimmed, false
	}
	return phonenumbers.Format(number, phonenumbers.E164), true
}

// NormalizeE164 is Normalize in DefaultRegion, discarding validity.
func NormalizeE164(input string) string {
	out, _ := Normalize(input, DefaultRegion)
	return out
}
