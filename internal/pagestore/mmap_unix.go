//go:build unix

package pagestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// MMapBackend is a memory-mapped arena: page bodies are appended to a
// growable file that stays mmap'd for the backend's lifetime, with a small
// JSON side-index recording each key's (offset, length). Grounded on
// Giulio2002-gdbx's mmap.go wrapper (mmapMap/unmap/remap via
// golang.org/x/sys/unix), adapted from a fixed-capacity database mapping to
// an append-only overflow arena.
//
// Deleted keys are dropped from the index but their bytes are not reclaimed
// from the arena file — compaction is left to a future GC pass, matching the
// spirit of the teacher's own freelist/GC split (pager.freelist.go,
// pager.gc.go) without reimplementing a full free-space allocator for what
// is, here, a reference backend.
type MMapBackend struct {
	mu       sync.Mutex
	f        *os.File
	data     []byte
	size     int64
	indexPath string
	index    map[string]mmapEntry
}

type mmapEntry struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// NewMMapBackend opens (creating if necessary) an mmap-backed arena rooted
// at dir, with files "arena.bin" and "arena.index.json".
func NewMMapBackend(dir string) (*MMapBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pagestore: mmap backend: create dir: %w", err)
	}
	arenaPath := filepath.Join(dir, "arena.bin")
	f, err := os.OpenFile(arenaPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: mmap backend: open arena: %w", err)
	}
	b := &MMapBackend{
		f:         f,
		indexPath: filepath.Join(dir, "arena.index.json"),
		index:     make(map[string]mmapEntry),
	}
	if err := b.loadIndex(); err != nil {
		f.Close()
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() > 0 {
		if err := b.mapTo(fi.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *MMapBackend) loadIndex() error {
	raw, err := os.ReadFile(b.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("pagestore: mmap backend: read index: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &b.index)
}

func (b *MMapBackend) saveIndex() error {
	raw, err := json.Marshal(b.index)
	if err != nil {
		return err
	}
	tmp := b.indexPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("pagestore: mmap backend: write index: %w", err)
	}
	return os.Rename(tmp, b.indexPath)
}

// mapTo (re)establishes the mapping at the given size, unmapping any prior
// mapping first.
func (b *MMapBackend) mapTo(size int64) error {
	if b.data != nil {
		if err := unix.Munmap(b.data); err != nil {
			return fmt.Errorf("pagestore: mmap backend: munmap: %w", err)
		}
		b.data = nil
	}
	if size == 0 {
		b.size = 0
		return nil
	}
	data, err := unix.Mmap(int(b.f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("pagestore: mmap backend: mmap: %w", err)
	}
	b.data = data
	b.size = size
	return nil
}

// grow extends the arena file and its mapping to hold extra more bytes,
// returning the offset at which the new region starts.
func (b *MMapBackend) grow(extra int64) (int64, error) {
	base := b.size
	newSize := base + extra
	if err := b.f.Truncate(newSize); err != nil {
		return 0, fmt.Errorf("pagestore: mmap backend: truncate: %w", err)
	}
	if err := b.mapTo(newSize); err != nil {
		return 0, err
	}
	return base, nil
}

func (b *MMapBackend) Save(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	off, err := b.grow(int64(len(data)))
	if err != nil {
		return err
	}
	copy(b.data[off:off+int64(len(data))], data)
	if err := unix.Msync(b.data[off:off+int64(len(data))], unix.MS_SYNC); err != nil {
		return fmt.Errorf("pagestore: mmap backend: msync: %w", err)
	}
	b.index[key] = mmapEntry{Offset: off, Length: int64(len(data))}
	return b.saveIndex()
}

func (b *MMapBackend) Load(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.index[key]
	if !ok {
		return nil, fmt.Errorf("pagestore: mmap backend: key %q not found", key)
	}
	if e.Length == 0 {
		return nil, fmt.Errorf("pagestore: mmap backend: key %q returned empty body", key)
	}
	out := make([]byte, e.Length)
	copy(out, b.data[e.Offset:e.Offset+e.Length])
	return out, nil
}

func (b *MMapBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.index, key)
	return b.saveIndex()
}

func (b *MMapBackend) Exists(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.index[key]
	return ok, nil
}

// Close unmaps the arena and closes the underlying file.
func (b *MMapBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data != nil {
		if err := unix.Munmap(b.data); err != nil {
			return err
		}
		b.data = nil
	}
	return b.f.Close()
}
