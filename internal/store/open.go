package store

import (
	"context"
	"errors"
	"strings"

	logx "linebell/pkg/logx"
)

// Store is the durable repository of scheduled-job records.
//
// ReplaceAll must be atomic: the previous contents remain intact if the write
// fails partway. All mutation is serialized by a single logical owner
// (jobs.Repo); drivers only need to be individually consistent.
type Store interface {
	LoadAll(ctx context.Context) ([]Job, error)
	ReplaceAll(ctx context.Context, jobs []Job) error
	AppendOne(ctx context.Context, j Job) error
	FindByID(ctx context.Context, id string) (Job, bool, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + cfg.Driver)
	}
}
