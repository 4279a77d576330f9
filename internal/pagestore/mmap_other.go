//go:build !unix

package pagestore

// NewMMapBackend has no memory-mapped implementation on non-unix platforms
// (the teacher's own gdbx mmap wrapper is similarly split into
// mmap_unix.go/mmap_windows.go via syscalls this reference implementation
// does not replicate for Windows). Here it returns a DiskBackend rooted at
// dir instead.
func NewMMapBackend(dir string) (*DiskBackend, error) {
	return NewDiskBackend(dir)
}
