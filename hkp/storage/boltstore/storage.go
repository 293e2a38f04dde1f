// Package boltstore implements a sharded, multi-index storage_btree
// backend on top of go.etcd.io/bbolt: a transactional, single-file B+tree keyed store.
// bbolt buckets don't natively support duplicate values per key the way
// onak's original Berkeley DB backend did, so each "duplicates allowed"
// index (word, id32, id64) is realized as a bucket-of-buckets: the index
// key names an inner bucket, and every value that maps to it becomes a key
// within that inner bucket — the bbolt-idiomatic way to realize a
// "duplicates allowed" index.
package boltstore

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	log "github.com/hkpd/keyserver/internal/log"
	"github.com/hkpd/keyserver/hkp/storage"
	"github.com/hkpd/keyserver/openpgp"
)

const (
	bucketPrimaryPrefix = "primary-shard-"
	bucketWord          = "word"
	bucketID32          = "id32"
	bucketID64          = "id64"
	bucketSksHash       = "skshash"
	bucketSubkey        = "subkey"

	// defaultShards matches onak's default of 16 primary shards.
	defaultShards = 16

	upgradeLockFile = "db_upgrade.lck"
)

func init() {
	storage.Register("btree", func(ctx context.Context, location string, readonly bool) (storage.Storage, error) {
		return Open(location, readonly)
	})
}

// Backend is the storage_btree engine. It satisfies storage.Storage.
type Backend struct {
	db     *bolt.DB
	shards int

	mu sync.Mutex
	tx *bolt.Tx
}

// Open opens (creating if absent) the bbolt file at location. A writable
// open holds the upgrade lockfile (see acquireUpgradeLock) while it opens
// the file and creates the buckets. No schema version is stored in the db
// or compared, so no upgrade step ever runs.
func Open(location string, readonly bool) (*Backend, error) {
	if err := acquireUpgradeLock(location, readonly); err != nil {
		return nil, err
	}
	defer releaseUpgradeLock(location, readonly)

	db, err := bolt.Open(location, 0600, &bolt.Options{
		Timeout:  5 * time.Second,
		ReadOnly: readonly,
	})
	if err != nil {
		return nil, errors.Wrap(err, "boltstore: open")
	}

	b := &Backend{db: db, shards: defaultShards}
	if !readonly {
		if err := b.createBuckets(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *Backend) createBuckets() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for i := 0; i < b.shards; i++ {
			if _, err := tx.CreateBucketIfNotExists([]byte(shardName(i))); err != nil {
				return errors.WithStack(err)
			}
		}
		for _, name := range []string{bucketWord, bucketID32, bucketID64, bucketSksHash, bucketSubkey} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}

func shardName(i int) string {
	return bucketPrimaryPrefix + string(rune('0'+i%10)) + string(rune('0'+(i/10)%10))
}

// shardOf selects a primary shard from the middle bytes of the fingerprint,
// bounding per-shard growth the same way onak's original sharding did.
func (b *Backend) shardOf(fp []byte) int {
	if len(fp) < 10 {
		return 0
	}
	mid := binary.BigEndian.Uint16(fp[len(fp)/2 : len(fp)/2+2])
	return int(mid) % b.shards
}

// acquireUpgradeLock takes the schema-upgrade lockfile: every writable
// Open creates db_upgrade.lck next to the db file, containing its pid,
// and removes it when Open returns; a process that finds the file already
// present polls until it disappears (for up to 60s) and then proceeds.
// Nothing is checked or upgraded while the lock is held.
func acquireUpgradeLock(location string, readonly bool) error {
	if readonly {
		return nil
	}
	lockPath := filepath.Join(filepath.Dir(location), upgradeLockFile)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return waitForUpgradeLock(lockPath)
		}
		return errors.Wrap(err, "boltstore: create upgrade lock")
	}
	defer f.Close()
	_, err = f.WriteString(pidString())
	return errors.Wrap(err, "boltstore: write upgrade lock")
}

func waitForUpgradeLock(lockPath string) error {
	for i := 0; i < 600; i++ {
		if _, err := os.Stat(lockPath); os.IsNotExist(err) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.Errorf("boltstore: timed out waiting for %s", lockPath)
}

func releaseUpgradeLock(location string, readonly bool) {
	if readonly {
		return
	}
	lockPath := filepath.Join(filepath.Dir(location), upgradeLockFile)
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		log.Warningf("boltstore: removing upgrade lock: %v", err)
	}
}

func pidString() string {
	return strconv.Itoa(os.Getpid())
}

// BeginTx starts a bbolt write transaction, matching the explicit
// begin/end protocol every Storage backend requires. Nested begins are
// rejected.
func (b *Backend) BeginTx(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tx != nil {
		return false, errors.WithStack(openpgp.NewError(openpgp.KindInvalidParam, "boltstore: nested transaction"))
	}
	tx, err := b.db.Begin(true)
	if err != nil {
		return false, errors.Wrap(err, "boltstore: begin")
	}
	b.tx = tx
	return true, nil
}

// EndTx commits the open transaction.
func (b *Backend) EndTx(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tx == nil {
		return nil
	}
	err := b.tx.Commit()
	b.tx = nil
	if err != nil {
		return errors.Wrap(err, "boltstore: commit")
	}
	return nil
}

func (b *Backend) abortTx() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tx != nil {
		b.tx.Rollback()
		b.tx = nil
	}
}

// withTx runs fn against the caller's open transaction if inTx, else opens
// and closes a short-lived one of its own.
func (b *Backend) withTx(inTx, writable bool, fn func(*bolt.Tx) error) error {
	if inTx {
		b.mu.Lock()
		tx := b.tx
		b.mu.Unlock()
		if tx == nil {
			return errors.WithStack(openpgp.NewError(openpgp.KindInvalidParam, "boltstore: inTx but no transaction open"))
		}
		return fn(tx)
	}
	if writable {
		return b.db.Update(fn)
	}
	return b.db.View(fn)
}

func (b *Backend) Close() error {
	return errors.Wrap(b.db.Close(), "boltstore: close")
}
