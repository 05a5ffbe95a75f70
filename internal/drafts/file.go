package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/models"
	"github.com/chmouel/lazystage/internal/utils"
)

const defaultFilePerms = 0o600

// FileStore keeps every draft in one JSON document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore stores drafts in dir/drafts.json.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, models.DraftsFilename)}
}

func (s *FileStore) load() (map[string]string, error) {
	// #nosec G304 -- path is built from the configured draft directory and a constant filename
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var payload struct {
		Drafts map[string]string `json:"drafts"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.Drafts == nil {
		payload.Drafts = map[string]string{}
	}
	return payload.Drafts, nil
}

// Load returns the draft for repoID.
func (s *FileStore) Load(_ context.Context, repoID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return "", lserrors.E(lserrors.Op("drafts.FileStore.Load"), lserrors.KindIO, err)
	}
	return all[repoID], nil
}

// Save writes the draft for repoID, rewriting the whole document.
func (s *FileStore) Save(_ context.Context, repoID, text string) error {
	const op = lserrors.Op("drafts.FileStore.Save")

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return lserrors.E(op, lserrors.KindIO, err)
	}
	if text == "" {
		delete(all, repoID)
	} else {
		all[repoID] = text
	}

	if err := os.MkdirAll(filepath.Dir(s.path), utils.DefaultDirPerms); err != nil {
		return lserrors.E(op, lserrors.KindIO, err)
	}
	data, err := json.Marshal(struct {
		Drafts map[string]string `json:"drafts"`
	}{Drafts: all})
	if err != nil {
		return lserrors.E(op, lserrors.KindIO, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, defaultFilePerms); err != nil {
		return lserrors.E(op, lserrors.KindIO, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return lserrors.E(op, lserrors.KindIO, err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
