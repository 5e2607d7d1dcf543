package keywords

import (
	"strings"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Content Marketing", "content marketing"},
		{"  best   CRM  software ", "best crm software"},
		{"SEO\ttools", "seo tools"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := Canonicalize(c.in); got != c.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValidateSeed(t *testing.T) {
	if err := ValidateSeed("content marketing"); err != nil {
		t.Fatalf("valid seed rejected: %v", err)
	}
	if err := ValidateSeed("a"); err == nil {
		t.Fatal("expected too-short rejection")
	}
	if err := ValidateSeed(strings.Repeat("x", 101)); err == nil {
		t.Fatal("expected too-long rejection")
	}
	if err := ValidateSeed("!!!"); err == nil {
		t.Fatal("expected no-alnum rejection")
	}
	if err := ValidateSeed("bad\x00seed"); err == nil {
		t.Fatal("expected control-char rejection")
	}
	// Length is judged on the canonical form, not the raw input.
	if err := ValidateSeed("  " + strings.Repeat("x", 100) + "  "); err != nil {
		t.Fatalf("canonical-length seed rejected: %v", err)
	}
}

func TestCanonicalizeSet(t *testing.T) {
	got := CanonicalizeSet([]string{"SEO Tools", "seo  tools", "crm", "", "CRM"})
	want := []string{"seo tools", "crm"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
