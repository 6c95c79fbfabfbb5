package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	logx "linebell/pkg/logx"
)

// fileStore persists jobs as a single JSON array.
//
// Writes go to a temp file in the same directory followed by a rename, so a
// crash mid-write never leaves a partially-written store behind.
type fileStore struct {
	log  logx.Logger
	path string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, persistErr("open", err)
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadAll(ctx context.Context) ([]Job, error) {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Job{}, nil
	}
	if err != nil {
		return nil, persistErr("load", err)
	}
	var jobs []Job
	if err := json.Unmarshal(b, &jobs); err != nil {
		return nil, persistErr("decode", err)
	}
	if jobs == nil {
		jobs = []Job{}
	}
	return jobs, nil
}

func (s *fileStore) ReplaceAll(ctx context.Context, jobs []Job) error {
	_ = ctx
	if jobs == nil {
		jobs = []Job{}
	}
	b, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return persistErr("encode", err)
	}
	b = append(b, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return persistErr("write", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return persistErr("rename", err)
	}
	return nil
}

func (s *fileStore) AppendOne(ctx context.Context, j Job) error {
	jobs, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	return s.ReplaceAll(ctx, append(jobs, j))
}

func (s *fileStore) FindByID(ctx context.Context, id string) (Job, bool, error) {
	jobs, err := s.LoadAll(ctx)
	if err != nil {
		return Job{}, false, err
	}
	for _, j := range jobs {
		if j.ID == id {
			return j.Clone(), true, nil
		}
	}
	return Job{}, false, nil
}
