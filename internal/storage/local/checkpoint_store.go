// Package local persists checkpoints as indented JSON documents on disk.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
)

// Config captures the parameters for the filesystem checkpoint store.
type Config struct {
	// BaseDir holds one <run key>.json document per run.
	BaseDir string `mapstructure:"dir" yaml:"dir"`
}

// Store reads and writes checkpoints under BaseDir.
type Store struct {
	baseDir string
}

// New creates a filesystem-backed checkpoint store, creating BaseDir when it
// does not exist yet.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("checkpoint directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create checkpoint directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat checkpoint directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("checkpoint path %q is not a directory", cfg.BaseDir)
	}
	return &Store{baseDir: cfg.BaseDir}, nil
}

// Path returns the document path for runKey.
func (s *Store) Path(runKey string) (string, error) {
	if strings.TrimSpace(runKey) == "" {
		return "", fmt.Errorf("run key is required")
	}
	full := filepath.Join(s.baseDir, runKey+".json")
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected in run key %q", runKey)
	}
	return full, nil
}

// Load reads the checkpoint for runKey. A missing file yields
// checkpoint.ErrNotFound; an unreadable or corrupt one is an error.
func (s *Store) Load(_ context.Context, runKey string) (*checkpoint.Checkpoint, error) {
	path, err := s.Path(runKey)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is confined to baseDir.
	if errors.Is(err, os.ErrNotExist) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	cp.Normalize()
	if cp.RunKey == "" {
		cp.RunKey = runKey
	}
	return &cp, nil
}

// Save replaces the document for cp.RunKey.
func (s *Store) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint is required")
	}
	path, err := s.Path(cp.RunKey)
	if err != nil {
		return err
	}
	return WriteJSON(path, cp)
}

// Delete removes the document for runKey; a missing file is not an error.
func (s *Store) Delete(_ context.Context, runKey string) error {
	path, err := s.Path(runKey)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// WriteJSON writes v as indented JSON to path through a temporary file and a
// rename, so readers never observe a partial document.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
