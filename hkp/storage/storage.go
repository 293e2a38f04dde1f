// Package storage defines the pluggable key-database backend interface
// and the generic UpdateKeys routine shared by every backend. Concrete
// backends live in sibling packages (boltstore, fsstore, stacked).
// boltstore ("btree") and fsstore ("fs") register themselves with Register
// so the process can pick one by name at config time, the way onak's
// keydb_dynamic.c dispatches on a backend name string; stacked is not
// registered and is built with stacked.Open from already-open backends.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hkpd/keyserver/openpgp"
)

// Storage is the abstract key-database backend every concrete engine must
// satisfy. All methods that can run inside a caller-managed
// transaction take inTx; passing true when no transaction is open, or vice
// versa, is a programmer error the backend is entitled to reject.
type Storage interface {
	// BeginTx starts a transaction, returning true if one was started.
	// Nested begins are an invariant violation.
	BeginTx(ctx context.Context) (bool, error)
	// EndTx commits the currently open transaction.
	EndTx(ctx context.Context) error

	FetchByID(ctx context.Context, keyID uint64, inTx bool) ([]*openpgp.PublicKey, error)
	FetchByFingerprint(ctx context.Context, fp []byte, inTx bool) ([]*openpgp.PublicKey, error)
	FetchByText(ctx context.Context, search string) ([]*openpgp.PublicKey, error)
	FetchBySksHash(ctx context.Context, hash [16]byte) (*openpgp.PublicKey, error)

	Store(ctx context.Context, key *openpgp.PublicKey, inTx bool, update bool) error
	Delete(ctx context.Context, fp []byte, inTx bool) error

	// Iterate visits every primary key exactly once, in unspecified
	// order, invoking visit for each. It stops early if visit returns an
	// error, propagating that error.
	Iterate(ctx context.Context, visit func(*openpgp.PublicKey) error) (int, error)

	// Close releases all resources, checkpointing first.
	Close() error
}

// MaxKeysDefault is the fetch_by_text result bound. boltstore clips
// FetchByText results at this value; no backend reads a configured limit,
// and fsstore does not clip its FetchByText results.
const MaxKeysDefault = 100

// UpdateKeys runs the generic update_keys routine over any Storage
// implementation: merge each incoming key against what's already
// stored, skip no-op deltas, and optionally refuse to create brand new
// keys (updateOnly). keys is rewritten in place so each surviving element
// holds only its merge delta, which is what callers use to compose a
// sync-mail notification.
func UpdateKeys(ctx context.Context, s Storage, keys []*openpgp.PublicKey, blacklist map[uint64]bool, updateOnly bool) (int, error) {
	newCount := 0
	out := keys[:0]

	for _, key := range keys {
		keyID, err := key.KeyID()
		if err != nil {
			return newCount, err
		}
		if blacklist[keyID] {
			continue
		}

		if _, err := s.BeginTx(ctx); err != nil {
			return newCount, err
		}

		fp, err := openpgp.Fingerprint(key.Primary)
		if err != nil {
			return newCount, err
		}
		existing, err := s.FetchByFingerprint(ctx, fp, true)
		if err != nil {
			return newCount, err
		}

		switch len(existing) {
		case 0:
			if updateOnly {
				if err := s.EndTx(ctx); err != nil {
					return newCount, err
				}
				continue
			}
			if err := s.Store(ctx, key, true, false); err != nil {
				return newCount, err
			}
			newCount++
			out = append(out, key)

		case 1:
			merged, delta, err := openpgp.Merge(existing[0], key)
			if err != nil {
				return newCount, err
			}
			if len(openpgp.FlattenPublicKey(delta)) <= 1 {
				// Only the primary packet survived into the delta: no
				// new material, nothing to store or announce.
				if err := s.EndTx(ctx); err != nil {
					return newCount, err
				}
				continue
			}
			if err := s.Store(ctx, merged, true, true); err != nil {
				return newCount, err
			}
			out = append(out, delta)

		default:
			if err := s.EndTx(ctx); err != nil {
				return newCount, err
			}
			return newCount, errors.Errorf("update_keys: %d keys share fingerprint %x", len(existing), fp)
		}

		if err := s.EndTx(ctx); err != nil {
			return newCount, err
		}
	}

	copy(keys, out)
	for i := len(out); i < len(keys); i++ {
		keys[i] = nil
	}
	return newCount, nil
}

// Opener constructs a Storage from a backend-specific config blob. Backends
// register one under their name via Register so the process can select a
// backend dynamically by config, mirroring onak's keydb_dynamic.c.
type Opener func(ctx context.Context, location string, readonly bool) (Storage, error)

var registry = map[string]Opener{}

// Register adds a backend constructor under name. Called from each
// backend package's init().
func Register(name string, open Opener) {
	registry[name] = open
}

// Open dispatches to the registered backend named by name, passing it
// location verbatim (a backend-specific location: the bbolt file path for
// "btree", the root directory for "fs").
func Open(ctx context.Context, name, location string, readonly bool) (Storage, error) {
	open, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("storage: unknown backend %q", name)
	}
	return open(ctx, location, readonly)
}
