package domain

import (
	"strings"
	"testing"
)

func TestSlugifyIdempotentCasing(t *testing.T) {
	if Slugify("Acme Corp") != Slugify("acme corp") {
		t.Fatalf("expected identical slugs, got %q vs %q", Slugify("Acme Corp"), Slugify("acme corp"))
	}
	if got := Slugify("Acme Corp"); got != "acme-corp" {
		t.Fatalf("expected acme-corp, got %q", got)
	}
}

func TestSlugifyStripsPunctuation(t *testing.T) {
	if got := Slugify("  O'Brien & Sons, Inc.  "); got != "obrien-sons-inc" {
		t.Fatalf("got %q", got)
	}
}

func TestSlugifyBoundedLength(t *testing.T) {
	long := strings.Repeat("very long client name ", 20)
	if got := Slugify(long); len(got) > 50 {
		t.Fatalf("expected slug <= 50 chars, got %d", len(got))
	}
}
