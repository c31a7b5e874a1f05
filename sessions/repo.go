package sessions

import (
	"context"
	"errors"
)

// ErrNoSnapshot is returned by Repo.Load when nothing has been persisted
var ErrNoSnapshot = errors.New("no persisted session")

// Repo is the durable key-value storage behind the store. The store only ever keeps one
// snapshot, so implementations are free to use a single fixed key.
type Repo interface {
	// Load returns the persisted snapshot or ErrNoSnapshot
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the persisted snapshot
	Save(ctx context.Context, snapshot *Snapshot) error

	// Delete removes the persisted snapshot. Deleting nothing is not an error.
	Delete(ctx context.Context) error
}
