package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const checkpointVersion = "1.0"

// Checkpoint is the watermark of the last committed run
type Checkpoint struct {
	Version      string     `json:"version"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSnapshot string     `json:"last_snapshot,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CheckpointStore reads and writes the checkpoint file
type CheckpointStore struct {
	path string
}

// NewCheckpointStore creates a store backed by path
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Path returns the checkpoint file path
func (s *CheckpointStore) Path() string {
	return s.path
}

// Load reads the checkpoint. A missing file yields an empty checkpoint;
// a file holding only a timestamp is read as the last run time.
func (s *CheckpointStore) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Checkpoint{Version: checkpointVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &Checkpoint{Version: checkpointVersion}, nil
	}

	if trimmed[0] != '{' {
		t, err := time.Parse(time.RFC3339Nano, strings.Trim(string(trimmed), `"`))
		if err != nil {
			return nil, fmt.Errorf("failed to parse legacy checkpoint %q: %w", s.path, err)
		}
		return &Checkpoint{Version: checkpointVersion, LastRun: &t}, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(trimmed, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	if cp.Version == "" {
		cp.Version = checkpointVersion
	}
	return &cp, nil
}

// Save writes the checkpoint atomically
func (s *CheckpointStore) Save(cp *Checkpoint) error {
	if s.path == "" {
		return fmt.Errorf("cannot determine checkpoint path")
	}

	cp.Version = checkpointVersion
	cp.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}
