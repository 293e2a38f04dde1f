package fsstore

import (
	"context"
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hkpd/keyserver/openpgp"
)

func (b *Backend) Store(ctx context.Context, key *openpgp.PublicKey, inTx bool, update bool) error {
	fp, err := openpgp.Fingerprint(key.Primary)
	if err != nil {
		return err
	}
	if update {
		if err := b.deleteByFp(fp); err != nil {
			return err
		}
	}

	path := b.keyPath(fp)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "fsstore: mkdir")
	}
	data := encodeKey(key)
	if err := ioutil.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, "fsstore: write key")
	}

	for word := range openpgp.TokenizeKey(key) {
		if err := link(path, b.wordPath(word, fp)); err != nil {
			return err
		}
	}

	for _, sk := range key.Subkeys {
		skFp, err := openpgp.Fingerprint(sk.Packet)
		if err != nil {
			return err
		}
		if err := link(path, b.subkeyPath(skFp)); err != nil {
			return err
		}
	}

	hash, err := openpgp.SksHash(key)
	if err != nil {
		return err
	}
	if err := link(path, b.skshashPath(hash)); err != nil {
		return err
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, fp []byte, inTx bool) error {
	return b.deleteByFp(fp)
}

func (b *Backend) deleteByFp(fp []byte) error {
	key, err := b.readByFp(fp)
	if err != nil {
		if openpgp.KindOf(err) == openpgp.KindNotFound {
			return nil
		}
		return err
	}

	for word := range openpgp.TokenizeKey(key) {
		if err := unlinkIfExists(b.wordPath(word, fp)); err != nil {
			return err
		}
	}
	for _, sk := range key.Subkeys {
		if skFp, err := openpgp.Fingerprint(sk.Packet); err == nil {
			unlinkIfExists(b.subkeyPath(skFp))
		}
	}
	if hash, err := openpgp.SksHash(key); err == nil {
		unlinkIfExists(b.skshashPath(hash))
	}
	return unlinkIfExists(b.keyPath(fp))
}

func (b *Backend) readByFp(fp []byte) (*openpgp.PublicKey, error) {
	data, err := ioutil.ReadFile(b.keyPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(openpgp.NewError(openpgp.KindNotFound, "fingerprint not found"))
		}
		return nil, errors.Wrap(err, "fsstore: read key")
	}
	return decodeKey(data)
}

func (b *Backend) FetchByFingerprint(ctx context.Context, fp []byte, inTx bool) ([]*openpgp.PublicKey, error) {
	key, err := b.readByFp(fp)
	if err != nil {
		if openpgp.KindOf(err) == openpgp.KindNotFound {
			// fp may be a subkey fingerprint; subkeys/ hard-links the
			// primary key's file under the subkey's own fingerprint, so
			// reading it directly yields the owning primary key's bytes.
			data, rerr := ioutil.ReadFile(b.subkeyPath(fp))
			if rerr != nil {
				return nil, nil
			}
			pk, derr := decodeKey(data)
			if derr != nil {
				return nil, derr
			}
			return []*openpgp.PublicKey{pk}, nil
		}
		return nil, err
	}
	return []*openpgp.PublicKey{key}, nil
}

func (b *Backend) FetchByID(ctx context.Context, keyID uint64, inTx bool) ([]*openpgp.PublicKey, error) {
	// storage_fs has no id32/id64 index files (only key/words/subkeys/
	// skshash); id lookups are served by a full scan,
	// acceptable because fsstore is the archival/cold-path backend,
	// typically wrapped by a faster backend in a stacked configuration.
	var out []*openpgp.PublicKey
	_, err := b.Iterate(ctx, func(pk *openpgp.PublicKey) error {
		id, err := pk.KeyID()
		if err != nil {
			return nil
		}
		if id == keyID || uint32(id) == uint32(keyID) {
			out = append(out, pk)
		}
		for _, sk := range pk.Subkeys {
			skID, err := openpgp.KeyIDFromPacket(sk.Packet)
			if err == nil && (skID == keyID || uint32(skID) == uint32(keyID)) {
				out = append(out, pk)
				break
			}
		}
		return nil
	})
	return out, err
}

func (b *Backend) FetchByText(ctx context.Context, search string) ([]*openpgp.PublicKey, error) {
	words := openpgp.Tokenize(search)
	var out []*openpgp.PublicKey
	seen := map[string]bool{}
	first := true
	for word := range words {
		dir := filepath.Join(b.root, "words", fanout(word), word)
		entries, err := ioutil.ReadDir(dir)
		if err != nil {
			return nil, nil
		}
		matched := map[string]bool{}
		for _, e := range entries {
			matched[e.Name()] = true
		}
		if first {
			for id := range matched {
				seen[id] = true
			}
			first = false
			continue
		}
		for id := range seen {
			if !matched[id] {
				delete(seen, id)
			}
		}
	}
	for idHex := range seen {
		fp, err := hex.DecodeString(idHex)
		if err != nil {
			continue
		}
		key, err := b.readByFp(fp)
		if err == nil {
			out = append(out, key)
		}
	}
	return out, nil
}

func (b *Backend) FetchBySksHash(ctx context.Context, hash [16]byte) (*openpgp.PublicKey, error) {
	data, err := ioutil.ReadFile(b.skshashPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "fsstore: read skshash")
	}
	return decodeKey(data)
}

func (b *Backend) Iterate(ctx context.Context, visit func(*openpgp.PublicKey) error) (int, error) {
	root := filepath.Join(b.root, "key")
	count := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "fsstore: read key")
		}
		key, err := decodeKey(data)
		if err != nil {
			return err
		}
		if err := visit(key); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}
