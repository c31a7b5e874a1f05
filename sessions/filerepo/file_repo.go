package filerepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/rs/zerolog"
)

var _ sessions.Repo = (*Repo)(nil)

// Repo persists the session snapshot as a JSON file. The file holds credentials, so the
// directory is created 0700 and the file written 0600.
type Repo struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
}

// New creates a file repo writing to path, creating its directory if needed
func New(path string, logger zerolog.Logger) (*Repo, error) {
	if path == "" {
		return nil, errors.New("session file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	logger.Debug().Str("path", path).Msg("file session repo initialized")
	return &Repo{path: path, logger: logger}, nil
}

func (r *Repo) Load(_ context.Context) (*sessions.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, sessions.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var snapshot sessions.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &snapshot, nil
}

// Save writes to a temporary file and renames it so a crash never leaves a torn snapshot
func (r *Repo) Save(_ context.Context, snapshot *sessions.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (r *Repo) Delete(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
