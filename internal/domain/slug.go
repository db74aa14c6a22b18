package domain

import (
	"regexp"
	"strings"
)

const maxSlugLen = 50

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[\s_-]+`)
)

// Slugify derives a URL-safe identity from a client name. The mapping
// is deterministic so repeated runs for the same client target the same
// logical resources.
func Slugify(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = slugStrip.ReplaceAllString(text, "")
	text = slugCollapse.ReplaceAllString(text, "-")
	text = strings.Trim(text, "-")
	if len(text) > maxSlugLen {
		text = text[:maxSlugLen]
	}
	return text
}
