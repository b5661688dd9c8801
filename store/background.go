package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// backgroundTTL keeps upload metadata for a year.
const backgroundTTL = 365 * 24 * time.Hour

// ErrBackgroundNotFound is returned for unknown or expired background ids.
var ErrBackgroundNotFound = errors.New("store: background not found")

type backgroundMeta struct {
	FileName   string `json:"file_name"`
	Owner      string `json:"owner"`
	UploadedAt int64  `json:"uploaded_at"`
}

// BackgroundStore keeps uploaded background images on local disk with their
// metadata in the token store.
type BackgroundStore struct {
	meta *TokenStore
	dir  string
}

// NewBackgroundStore returns a store writing files under dir.
func NewBackgroundStore(meta *TokenStore, dir string) (*BackgroundStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &BackgroundStore{meta: meta, dir: dir}, nil
}

// Save writes the image to disk and records metadata keyed by a fresh
// background id. Owner is the fingerprint of the uploading credential.
func (s *BackgroundStore) Save(ctx context.Context, data []byte, ext, owner string) (string, error) {
	fileName := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, fileName), data, 0o644); err != nil {
		return "", fmt.Errorf("write background file: %w", err)
	}

	id := "bg_" + uuid.NewString()
	meta, err := json.Marshal(backgroundMeta{
		FileName:   fileName,
		Owner:      owner,
		UploadedAt: time.Now().Unix(),
	})
	if err != nil {
		return "", err
	}
	if err := s.meta.Put(ctx, id, meta, backgroundTTL); err != nil {
		_ = os.Remove(filepath.Join(s.dir, fileName))
		return "", err
	}
	return id, nil
}

// Load returns the raw image bytes for a background id.
func (s *BackgroundStore) Load(ctx context.Context, id string) ([]byte, error) {
	raw, ok := s.meta.Get(ctx, id)
	if !ok {
		return nil, ErrBackgroundNotFound
	}
	var meta backgroundMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode background metadata: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, meta.FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackgroundNotFound
		}
		return nil, err
	}
	return data, nil
}
