// Package directory is the recipient registry: a human-readable group name
// mapped to the opaque recipient id the push channel understands.
package directory

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "linebell/pkg/logx"
)

var ErrEmptyName = errors.New("recipient name is empty")

// Directory is a file-backed name -> recipient-id registry.
// Safe for concurrent use.
type Directory struct {
	mu    sync.Mutex
	path  string
	log   logx.Logger
	names map[string]string
}

// Open loads the registry from path. A missing file is an empty registry.
func Open(path string, log logx.Logger) (*Directory, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("directory.path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	names := map[string]string{}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// first run
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(b, &names); err != nil {
			return nil, err
		}
	}

	return &Directory{path: path, log: log, names: names}, nil
}

// Resolve maps a group name to its recipient id.
func (d *Directory) Resolve(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.names[strings.TrimSpace(name)]
	return id, ok
}

// Register adds or replaces a name -> id entry and persists the registry.
func (d *Directory) Register(name, id string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("recipient id is empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[name] = id
	if err := d.saveLocked(); err != nil {
		return err
	}
	d.log.Info("recipient registered", logx.String("name", name))
	return nil
}

// List returns a name-sorted snapshot of all entries.
func (d *Directory) List() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Entry, 0, len(d.names))
	for name, id := range d.names {
		out = append(out, Entry{Name: name, RecipientID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type Entry struct {
	Name        string `json:"name"`
	RecipientID string `json:"recipient_id"`
}

func (d *Directory) saveLocked() error {
	b, err := json.MarshalIndent(d.names, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, d.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
