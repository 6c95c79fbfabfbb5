package jobs

import (
	"context"
	"errors"
	"sync"

	"linebell/internal/store"
)

// ErrNoChange may be returned by an Update func to signal that nothing was
// modified; the repo then skips the write and Update returns nil.
var ErrNoChange = errors.New("no change")

// Repo is the single logical owner of the job store. Every read-modify-write
// — management mutations and the dispatcher tick alike — serializes through
// its mutex, so a create can never race a tick's load-then-replace.
type Repo struct {
	mu sync.Mutex
	st store.Store
}

func NewRepo(st store.Store) *Repo { return &Repo{st: st} }

// All returns a snapshot of every job.
func (r *Repo) All(ctx context.Context) ([]store.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.LoadAll(ctx)
}

// Get returns one job by id.
func (r *Repo) Get(ctx context.Context, id string) (store.Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.FindByID(ctx, id)
}

// Append persists one new job.
func (r *Repo) Append(ctx context.Context, j store.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.AppendOne(ctx, j)
}

// Update runs fn on the full job set under the repo lock and persists the
// result in one atomic write. fn may take as long as it needs (the dispatcher
// delivers inside it); concurrent mutations wait.
//
// If fn returns an error the store is left untouched; ErrNoChange is
// swallowed.
func (r *Repo) Update(ctx context.Context, fn func(jobs []store.Job) ([]store.Job, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs, err := r.st.LoadAll(ctx)
	if err != nil {
		return err
	}
	next, err := fn(jobs)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.st.ReplaceAll(ctx, next)
}
