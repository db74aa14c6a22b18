// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/instantprod/proposal-engine/internal/domain"
)

const recordFile = "last_deployment.json"

// RecordStore keeps the most recent DeploymentRecord at a well-known
// path. Last writer wins across concurrent runs; the write-then-rename
// discipline only guarantees readers never see a partial record.
type RecordStore struct {
	path string
}

func NewRecordStore(workspaceDir string) *RecordStore {
	return &RecordStore{path: filepath.Join(workspaceDir, recordFile)}
}

func (s *RecordStore) Path() string { return s.path }

func (s *RecordStore) Save(rec domain.DeploymentRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal deployment record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), recordFile+".*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish deployment record: %w", err)
	}
	return nil
}

func (s *RecordStore) Load() (domain.DeploymentRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.DeploymentRecord{}, domain.ErrNoDeployment
		}
		return domain.DeploymentRecord{}, fmt.Errorf("read deployment record: %w", err)
	}

	var rec domain.DeploymentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("decode deployment record: %w", err)
	}
	return rec, nil
}
