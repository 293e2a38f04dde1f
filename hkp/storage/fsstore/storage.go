// Package fsstore implements the storage_fs backend: the same logical
// indexes as boltstore, realized as directory hierarchies of hard
// links instead of B+tree buckets. Grounded directly on onak's
// keydb_fs.c, translated from mkdir/link/unlink calls to their Go
// equivalents.
package fsstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/hkpd/keyserver/hkp/storage"
	"github.com/hkpd/keyserver/openpgp"
)

func init() {
	storage.Register("fs", func(ctx context.Context, location string, readonly bool) (storage.Storage, error) {
		return Open(location, readonly)
	})
}

// Backend is the storage_fs engine rooted at a directory.
type Backend struct {
	root     string
	readonly bool

	lockFile *os.File
	mu       sync.Mutex
	inTx     bool
}

// Open roots a Backend at dir, creating the directory skeleton if absent,
// and takes a whole-database flock(2) advisory lock on <dir>/.lock (not an
// fcntl record lock): readers take a shared lock, writers an exclusive
// one. Open blocks until the lock is granted.
func Open(dir string, readonly bool) (*Backend, error) {
	for _, sub := range []string{"key", "words", "subkeys", "skshash"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0700); err != nil {
			return nil, errors.Wrap(err, "fsstore: mkdir")
		}
	}

	lockPath := filepath.Join(dir, ".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "fsstore: open lockfile")
	}
	flags := unix.LOCK_SH
	if !readonly {
		flags = unix.LOCK_EX
	}
	if err := unix.Flock(int(f.Fd()), flags); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "fsstore: flock")
	}

	return &Backend{root: dir, readonly: readonly, lockFile: f}, nil
}

func (b *Backend) Close() error {
	unix.Flock(int(b.lockFile.Fd()), unix.LOCK_UN)
	return errors.Wrap(b.lockFile.Close(), "fsstore: close lockfile")
}

// fanout computes a non-zero 32-bit FNV-1a hash of ident (0 is reserved
// for an empty slot) and formats it as three directory levels:
// XX/XX/XXXXXXXX.
func fanout(ident string) string {
	h := fnv.New32a()
	h.Write([]byte(ident))
	v := h.Sum32()
	if v == 0 {
		v = 1
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	hexStr := hex.EncodeToString(b[:])
	return filepath.Join(hexStr[0:2], hexStr[2:4], hexStr)
}

func (b *Backend) keyPath(fp []byte) string {
	id := hex.EncodeToString(fp)
	return filepath.Join(b.root, "key", fanout(id), id)
}

func (b *Backend) wordPath(word string, fp []byte) string {
	id := hex.EncodeToString(fp)
	return filepath.Join(b.root, "words", fanout(word), word, id)
}

func (b *Backend) subkeyPath(skFp []byte) string {
	id := hex.EncodeToString(skFp)
	return filepath.Join(b.root, "subkeys", fanout(id), id)
}

func (b *Backend) skshashPath(hash [16]byte) string {
	id := hex.EncodeToString(hash[:])
	return filepath.Join(b.root, "skshash", fanout(id), id)
}

// BeginTx has no true multi-statement transaction to offer (each
// filesystem operation is independently atomic at best), but callers are
// still required to bracket a logical unit of work with BeginTx/EndTx so
// storage.UpdateKeys works uniformly across backends.
func (b *Backend) BeginTx(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inTx {
		return false, errors.WithStack(openpgp.NewError(openpgp.KindInvalidParam, "fsstore: nested transaction"))
	}
	b.inTx = true
	return true, nil
}

func (b *Backend) EndTx(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inTx = false
	return nil
}

func link(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return errors.Wrap(err, "fsstore: mkdir")
	}
	if err := os.Link(src, dst); err != nil {
		if os.IsExist(err) {
			return nil
		}
		return errors.Wrap(err, "fsstore: link")
	}
	return nil
}

func unlinkIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "fsstore: unlink")
	}
	return nil
}
