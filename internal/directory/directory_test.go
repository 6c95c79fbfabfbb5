package directory

import (
	"errors"
	"path/filepath"
	"testing"

	logx "linebell/pkg/logx"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	d, err := Open(filepath.Join(t.TempDir(), "recipients.json"), logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := d.List(); len(got) != 0 {
		t.Fatalf("expected empty registry, got %v", got)
	}
}

func TestRegisterResolvePersist(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "recipients.json")

	d, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := d.Register("family", "U100"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Register("friends", "U200"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if id, ok := d.Resolve("family"); !ok || id != "U100" {
		t.Fatalf("Resolve(family) = %q, %v", id, ok)
	}
	if id, ok := d.Resolve(" family "); !ok || id != "U100" {
		t.Fatalf("resolve must trim, got %q, %v", id, ok)
	}
	if _, ok := d.Resolve("nobody"); ok {
		t.Fatal("unknown name resolved")
	}

	// Re-register replaces.
	if err := d.Register("family", "U999"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if id, _ := d.Resolve("family"); id != "U999" {
		t.Fatalf("Resolve after replace = %q", id)
	}

	// Survives a reopen.
	d2, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	list := d2.List()
	if len(list) != 2 {
		t.Fatalf("reopened registry has %d entries", len(list))
	}
	if list[0].Name != "family" || list[1].Name != "friends" {
		t.Fatalf("list not sorted by name: %v", list)
	}
}

func TestRegisterRejectsEmpty(t *testing.T) {
	t.Parallel()
	d, err := Open(filepath.Join(t.TempDir(), "recipients.json"), logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := d.Register("  ", "U1"); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("err = %v, want ErrEmptyName", err)
	}
	if err := d.Register("family", " "); err == nil {
		t.Fatal("expected error for empty id")
	}
}
