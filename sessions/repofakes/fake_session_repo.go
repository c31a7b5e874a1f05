package repofakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo keeps the snapshot in memory. It also backs the "memory" store backend.
type FakeSessionRepo struct {
	snapshot *sessions.Snapshot
	lock     sync.RWMutex

	saves   int
	deletes int
	failErr error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{}
}

// FailWith makes every following call return err (nil restores normal behaviour)
func (r *FakeSessionRepo) FailWith(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failErr = err
}

func (r *FakeSessionRepo) Load(_ context.Context) (*sessions.Snapshot, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	if r.snapshot == nil {
		return nil, sessions.ErrNoSnapshot
	}
	c := *r.snapshot
	c.User = r.snapshot.User.Clone()
	return &c, nil
}

func (r *FakeSessionRepo) Save(_ context.Context, snapshot *sessions.Snapshot) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	c := *snapshot
	c.User = snapshot.User.Clone()
	r.snapshot = &c
	r.saves++
	return nil
}

func (r *FakeSessionRepo) Delete(_ context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.snapshot = nil
	r.deletes++
	return nil
}

// Saves returns how many snapshots were written
func (r *FakeSessionRepo) Saves() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.saves
}

// Deletes returns how many times the snapshot was removed
func (r *FakeSessionRepo) Deletes() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.deletes
}

// Snapshot returns the stored snapshot without copying, nil when empty
func (r *FakeSessionRepo) Snapshot() *sessions.Snapshot {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.snapshot
}
