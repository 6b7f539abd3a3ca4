package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
)

// CheckpointStore keeps <run key>.json objects in a bucket.
type CheckpointStore struct {
	bucket *Bucket
}

// NewCheckpointStore stores checkpoints in b.
func NewCheckpointStore(b *Bucket) *CheckpointStore {
	return &CheckpointStore{bucket: b}
}

// Load reads the checkpoint object for runKey.
func (s *CheckpointStore) Load(ctx context.Context, runKey string) (*checkpoint.Checkpoint, error) {
	data, err := s.bucket.Read(ctx, runKey+".json")
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", runKey, err)
	}
	cp.Normalize()
	if cp.RunKey == "" {
		cp.RunKey = runKey
	}
	return &cp, nil
}

// Save overwrites the checkpoint object.
func (s *CheckpointStore) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil || cp.RunKey == "" {
		return fmt.Errorf("checkpoint with run key is required")
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if _, err := s.bucket.Upload(ctx, cp.RunKey+".json", "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
