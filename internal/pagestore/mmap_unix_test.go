//go:build unix

package pagestore

import "testing"

func TestMMapBackendConformance(t *testing.T) {
	b, err := NewMMapBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewMMapBackend: %v", err)
	}
	defer b.Close()
	exerciseBackend(t, b)
}

func TestMMapBackendPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	b, err := NewMMapBackend(dir)
	if err != nil {
		t.Fatalf("NewMMapBackend: %v", err)
	}
	if err := b.Save("k", []byte("persisted")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewMMapBackend(dir)
	if err != nil {
		t.Fatalf("reopen NewMMapBackend: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Load("k")
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if string(got) != "persisted" {
		t.Fatalf("Load after reopen = %q, want %q", got, "persisted")
	}
}
