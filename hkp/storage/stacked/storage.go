// Package stacked implements a stacked backend: reads try each backend
// in order and stop at the first hit; writes go only to the
// first backend; a hit found below the top is optionally cleaned and
// written back into the top backend to accelerate future reads. Grounded
// directly on onak's keydb_stacked.c. This backend is not registered with
// storage.Register; it is built with Open from backends that are already
// open.
package stacked

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hkpd/keyserver/hkp/storage"
	"github.com/hkpd/keyserver/openpgp"
)

// Backend chains backends[0] (the fast path, also the only one written to)
// through backends[1:] (fallbacks).
type Backend struct {
	backends        []storage.Storage
	storeOnFallback bool
	policy          openpgp.CleanPolicy
}

// Open builds a stacked backend. storeOnFallback matches onak's default of
// true: a read satisfied by a lower backend gets written into backends[0].
func Open(backends []storage.Storage, storeOnFallback bool, policy openpgp.CleanPolicy) (*Backend, error) {
	if len(backends) == 0 {
		return nil, errors.New("stacked: at least one backend required")
	}
	return &Backend{backends: backends, storeOnFallback: storeOnFallback, policy: policy}, nil
}

func (b *Backend) top() storage.Storage { return b.backends[0] }

func (b *Backend) BeginTx(ctx context.Context) (bool, error) { return b.top().BeginTx(ctx) }
func (b *Backend) EndTx(ctx context.Context) error           { return b.top().EndTx(ctx) }
func (b *Backend) Store(ctx context.Context, key *openpgp.PublicKey, inTx bool, update bool) error {
	return b.top().Store(ctx, key, inTx, update)
}
func (b *Backend) Delete(ctx context.Context, fp []byte, inTx bool) error {
	return b.top().Delete(ctx, fp, inTx)
}
func (b *Backend) Iterate(ctx context.Context, visit func(*openpgp.PublicKey) error) (int, error) {
	return b.top().Iterate(ctx, visit)
}
func (b *Backend) Close() error {
	var errs []string
	for _, be := range b.backends {
		if err := be.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (b *Backend) storeOnFallbackIfHit(ctx context.Context, keys []*openpgp.PublicKey, foundAt int) {
	if !b.storeOnFallback || foundAt == 0 || len(keys) == 0 {
		return
	}
	for _, key := range keys {
		cleaned := key.Clone()
		openpgp.DedupUIDs(cleaned)
		openpgp.DedupSubkeys(cleaned)
		if b.policy != 0 {
			openpgp.ApplyPolicy(cleaned, b.policy, 0)
		}
		// Best effort: a fallback-store failure shouldn't fail the read
		// that triggered it.
		b.top().Store(ctx, cleaned, false, false)
	}
}

func (b *Backend) FetchByID(ctx context.Context, keyID uint64, inTx bool) ([]*openpgp.PublicKey, error) {
	for i, be := range b.backends {
		keys, err := be.FetchByID(ctx, keyID, inTx && i == 0)
		if err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			b.storeOnFallbackIfHit(ctx, keys, i)
			return keys, nil
		}
	}
	return nil, nil
}

func (b *Backend) FetchByFingerprint(ctx context.Context, fp []byte, inTx bool) ([]*openpgp.PublicKey, error) {
	for i, be := range b.backends {
		keys, err := be.FetchByFingerprint(ctx, fp, inTx && i == 0)
		if err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			b.storeOnFallbackIfHit(ctx, keys, i)
			return keys, nil
		}
	}
	return nil, nil
}

func (b *Backend) FetchByText(ctx context.Context, search string) ([]*openpgp.PublicKey, error) {
	for i, be := range b.backends {
		keys, err := be.FetchByText(ctx, search)
		if err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			b.storeOnFallbackIfHit(ctx, keys, i)
			return keys, nil
		}
	}
	return nil, nil
}

func (b *Backend) FetchBySksHash(ctx context.Context, hash [16]byte) (*openpgp.PublicKey, error) {
	for i, be := range b.backends {
		key, err := be.FetchBySksHash(ctx, hash)
		if err != nil {
			return nil, err
		}
		if key != nil {
			b.storeOnFallbackIfHit(ctx, []*openpgp.PublicKey{key}, i)
			return key, nil
		}
	}
	return nil, nil
}
