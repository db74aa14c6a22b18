// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveTranscriptNaming(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}

	path, err := ws.SaveTranscript("acme-corp", "hello")
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	base := filepath.Base(path)
	want := "acme-corp_" + time.Now().Format("20060102") + ".txt"
	if base != want {
		t.Fatalf("expected %q, got %q", want, base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestListProposalsNewestFirst(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(root)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}

	dir := filepath.Join(root, "proposals")
	now := time.Now()
	for i, name := range []string{"old.html", "mid.html", "new.html", "ignored.txt"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		// ReadDir mtimes can collide within a test; space them out.
		mtime := now.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}

	files, err := ws.ListProposals(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 html files, got %d", len(files))
	}
	if files[0].Name != "new.html" || files[2].Name != "old.html" {
		t.Fatalf("expected newest-first order, got %v", names(files))
	}

	limited, err := ws.ListProposals(2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 || limited[0].Name != "new.html" {
		t.Fatalf("expected top 2 newest, got %v", names(limited))
	}
}

func TestListTranscriptsEmpty(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}

	files, err := ws.ListTranscripts(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no transcripts, got %d", len(files))
	}
}

func names(files []FileEntry) string {
	parts := make([]string, len(files))
	for i, f := range files {
		parts[i] = f.Name
	}
	return strings.Join(parts, ",")
}
