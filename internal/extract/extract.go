// SPDX-License-Identifier: Apache-2.0

// Package extract recovers structured values from step results. Both
// forms of lookup here are fallible: a value scraped from unstructured
// output and a derived artifact path can each come back absent even
// when the step itself exited zero.
package extract

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// urlPattern accepts a line-initial https URL with a plausible host.
var urlPattern = regexp.MustCompile(`^https://[A-Za-z0-9][A-Za-z0-9.-]*[^\s]*$`)

// LastURL returns the last line of output that is itself a URL. Deploy
// tools print status lines before the final URL, so the last match is
// the deployment address.
func LastURL(output string) (string, bool) {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if urlPattern.MatchString(line) {
			return line, true
		}
	}
	return "", false
}

// Sidecar computes the derived artifact path for inputPath (its stem
// plus suffix, in the same directory) and reports whether the artifact
// actually exists on disk.
func Sidecar(inputPath, suffix string) (string, bool) {
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	derived := filepath.Join(dir, stem+suffix)
	info, err := os.Stat(derived)
	if err != nil || info.IsDir() {
		return derived, false
	}
	return derived, true
}
