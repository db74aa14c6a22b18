// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLastURLSelectsLastMatch(t *testing.T) {
	output := `Deploying proposal-acme to production...
https://proposal-acme-abc123.vercel.app
Inspect: not-a-url
https://proposal-acme.vercel.app
Done.`

	url, ok := LastURL(output)
	if !ok {
		t.Fatal("expected a URL")
	}
	if url != "https://proposal-acme.vercel.app" {
		t.Fatalf("expected last URL, got %q", url)
	}
}

func TestLastURLIgnoresMidLineURLs(t *testing.T) {
	output := "Inspect: https://vercel.com/acme/deployments/xyz\nall done"
	if url, ok := LastURL(output); ok {
		t.Fatalf("expected no line-initial URL, got %q", url)
	}
}

func TestLastURLEmptyOutput(t *testing.T) {
	if _, ok := LastURL(""); ok {
		t.Fatal("expected no URL in empty output")
	}
}

func TestSidecarExists(t *testing.T) {
	dir := t.TempDir()
	transcript := filepath.Join(dir, "acme_20260826.txt")
	sidecar := filepath.Join(dir, "acme_20260826_data.json")

	if err := os.WriteFile(sidecar, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	got, ok := Sidecar(transcript, "_data.json")
	if !ok {
		t.Fatal("expected sidecar to exist")
	}
	if got != sidecar {
		t.Fatalf("expected %q, got %q", sidecar, got)
	}
}

func TestSidecarMissing(t *testing.T) {
	dir := t.TempDir()
	transcript := filepath.Join(dir, "acme_20260826.txt")

	got, ok := Sidecar(transcript, "_data.json")
	if ok {
		t.Fatalf("expected missing sidecar, got %q", got)
	}
	if got == "" {
		t.Fatal("expected derived path even when absent")
	}
}
