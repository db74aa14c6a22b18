// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	transcriptsDir = "transcripts"
	proposalsDir   = "proposals"
	dateLayout     = "20060102"
)

// Workspace owns the on-disk layout for pipeline artifacts:
// <root>/transcripts and <root>/proposals.
type Workspace struct {
	root string
}

func NewWorkspace(root string) (*Workspace, error) {
	for _, sub := range []string{transcriptsDir, proposalsDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create workspace dir %s: %w", sub, err)
		}
	}
	return &Workspace{root: root}, nil
}

func (w *Workspace) Root() string { return w.root }

// SaveTranscript writes the transcript as <slug>_<date>.txt so the
// ANALYZE collaborator can derive its sidecar next to it.
func (w *Workspace) SaveTranscript(slug, text string) (string, error) {
	name := fmt.Sprintf("%s_%s.txt", slug, time.Now().Format(dateLayout))
	path := filepath.Join(w.root, transcriptsDir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("save transcript: %w", err)
	}
	return path, nil
}

// ProposalPath is where GENERATE must place its HTML artifact.
func (w *Workspace) ProposalPath(slug string) string {
	name := fmt.Sprintf("%s_%s.html", slug, time.Now().Format(dateLayout))
	return filepath.Join(w.root, proposalsDir, name)
}

// FileEntry describes one workspace artifact for listing tools.
type FileEntry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Modified  time.Time `json:"modified"`
}

func (w *Workspace) ListProposals(limit int) ([]FileEntry, error) {
	return listFiles(filepath.Join(w.root, proposalsDir), ".html", limit)
}

func (w *Workspace) ListTranscripts(limit int) ([]FileEntry, error) {
	return listFiles(filepath.Join(w.root, transcriptsDir), ".txt", limit)
}

func listFiles(dir, ext string, limit int) ([]FileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	files := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileEntry{
			Name:      entry.Name(),
			Path:      filepath.Join(dir, entry.Name()),
			SizeBytes: info.Size(),
			Modified:  info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})

	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}
