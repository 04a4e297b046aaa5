package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	cases := map[string]string{
		"JOHN_DOE":    `JOHN\_DOE`,
		"a*b`c[d":     "a\\*b\\`c\\[d",
		"plain 123":   "plain 123",
		"AA 1234 BC.": "AA 1234 BC.",
	}
	for in, want := range cases {
		if got := EscapeMarkdown(in); got != want {
			t.Errorf("EscapeMarkdown(%q) = %q, want %q", in, got, want)
		}
	}
}
