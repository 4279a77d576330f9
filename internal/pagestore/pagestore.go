// Package pagestore defines the PageStorage contract used to persist
// evicted dirty page bodies by opaque key, plus four concrete backends:
// an in-memory map (for tests), an on-disk file-per-key store grounded on
// the teacher's storage.DiskBackend, a memory-mapped arena grounded on
// Giulio2002-gdbx's mmap wrapper, and a SQLite-backed table grounded on
// the teacher's own sqlite benchmark helper. Spec §4.7 names
// "memory-map and on-disk file-per-key" as the expected external
// collaborators; SQLite is an additional backend beyond what spec §4.7
// requires.
package pagestore

// PageStorage persists evicted dirty page bodies by opaque key. A key
// written by Save is returned exactly by Load until Delete.
type PageStorage interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, error)
	Delete(key string) error
	Exists(key string) (bool, error)
}
