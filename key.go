package sysvipc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Key is a System V IPC key. Unrelated processes that agree on a key reach the
// same semaphore set, segment or queue.
type Key uint32

// IPCPrivate asks the kernel for a new object that cannot be looked up by key.
const IPCPrivate Key = 0

// String formats the key the way ipcs(1) prints it.
func (k Key) String() string {
	return fmt.Sprintf("0x%08x", uint32(k))
}

// FileIdentity is the on-disk identity of a filesystem entry.
type FileIdentity struct {
	Dev uint64
	Ino uint64
}

// StatResolver resolves paths with stat(2), following symlinks.
type StatResolver struct{}

// Identify returns the device and inode numbers of path.
func (StatResolver) Identify(path string) (FileIdentity, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return FileIdentity{}, err
	}
	return FileIdentity{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}, nil
}

// MakeKey packs a file identity and a project id into a Key:
//
//	bits 31-24: id & 0xff
//	bits 23-16: dev & 0xff
//	bits 15-0:  ino & 0xffff
//
// Distinct files whose retained bits agree produce the same key.
func MakeKey(fid FileIdentity, id int) Key {
	return Key(uint32(id&0xff)<<24 |
		uint32(fid.Dev&0xff)<<16 |
		uint32(fid.Ino&0xffff))
}

// DeriveKey resolves path with r and combines its identity with id. Only the low
// 8 bits of id are used. A path that cannot be resolved fails with ErrNotFound.
// DeriveKey holds no state; the same file and id always yield the same key.
func DeriveKey(r PathResolver, path string, id int) (Key, error) {
	fid, err := r.Identify(path)
	if err != nil {
		return 0, &OpError{Op: "ftok", ID: -1, Index: -1, Path: path, Err: ErrNotFound, Sys: err}
	}
	return MakeKey(fid, id), nil
}

// Ftok derives a key from path and id using stat(2).
//
//	key, err := sysvipc.Ftok("/var/run/myapp", 'A')
func Ftok(path string, id int) (Key, error) {
	return DeriveKey(StatResolver{}, path, id)
}
