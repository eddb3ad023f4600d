package sanitize

import "testing"

func TestText(t *testing.T) {
	got := Text("  <b>Hull</b>   cleaning &lt;script&gt;x&lt;/script&gt; please ")
	if got != "Hull cleaning x please" {
		t.Fatalf("unexpected sanitized text: %q", got)
	}
}
