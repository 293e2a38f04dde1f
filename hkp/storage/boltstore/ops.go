package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/hkpd/keyserver/openpgp"
)

func fpHex(fp []byte) string { return hex.EncodeToString(fp) }

// Store implements the store protocol: within one tx, delete first when
// updating, then write the primary record and every auxiliary
// index entry.
func (b *Backend) Store(ctx context.Context, key *openpgp.PublicKey, inTx bool, update bool) error {
	fp, err := openpgp.Fingerprint(key.Primary)
	if err != nil {
		return err
	}

	return b.withTx(inTx, true, func(tx *bolt.Tx) error {
		if update {
			if err := b.deleteByFpTx(tx, fp); err != nil {
				return err
			}
		}

		pkts := openpgp.FlattenPublicKey(key)
		var buf []byte
		for _, p := range pkts {
			buf = append(buf, byte(p.Tag))
			var lenBuf [4]byte
			binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p.Data)))
			buf = append(buf, lenBuf[:]...)
			buf = append(buf, p.Data...)
		}

		shard := tx.Bucket([]byte(shardName(b.shardOf(fp))))
		if shard == nil {
			return errors.Errorf("boltstore: missing shard bucket")
		}
		if err := shard.Put(fp, buf); err != nil {
			return errors.WithStack(err)
		}

		keyID, err := key.KeyID()
		if err != nil {
			return err
		}
		if err := putDup(tx, bucketID64, u64Bytes(keyID), fp); err != nil {
			return err
		}
		if err := putDup(tx, bucketID32, u32Bytes(uint32(keyID)), fp); err != nil {
			return err
		}

		for word := range openpgp.TokenizeKey(key) {
			if err := putDup(tx, bucketWord, []byte(word), fp); err != nil {
				return err
			}
		}

		for _, sk := range key.Subkeys {
			skFp, err := openpgp.Fingerprint(sk.Packet)
			if err != nil {
				return err
			}
			skID, err := openpgp.KeyIDFromPacket(sk.Packet)
			if err != nil {
				return err
			}
			sub := tx.Bucket([]byte(bucketSubkey))
			if err := sub.Put(skFp, fp); err != nil {
				return errors.WithStack(err)
			}
			if err := putDup(tx, bucketID64, u64Bytes(skID), fp); err != nil {
				return err
			}
			if err := putDup(tx, bucketID32, u32Bytes(uint32(skID)), fp); err != nil {
				return err
			}
		}

		hash, err := openpgp.SksHash(key)
		if err != nil {
			return err
		}
		hb := tx.Bucket([]byte(bucketSksHash))
		if err := hb.Put(hash[:], fp); err != nil {
			return errors.WithStack(err)
		}
		return nil
	})
}

// Delete implements the delete protocol: fetch first to recover index
// information, then remove every auxiliary entry before the primary.
func (b *Backend) Delete(ctx context.Context, fp []byte, inTx bool) error {
	return b.withTx(inTx, true, func(tx *bolt.Tx) error {
		return b.deleteByFpTx(tx, fp)
	})
}

func (b *Backend) deleteByFpTx(tx *bolt.Tx, fp []byte) error {
	key, err := b.readPrimaryTx(tx, fp)
	if err != nil {
		if openpgp.KindOf(err) == openpgp.KindNotFound {
			return nil
		}
		return err
	}

	keyID, _ := key.KeyID()
	delDup(tx, bucketID64, u64Bytes(keyID), fp)
	delDup(tx, bucketID32, u32Bytes(uint32(keyID)), fp)
	for word := range openpgp.TokenizeKey(key) {
		delDup(tx, bucketWord, []byte(word), fp)
	}
	for _, sk := range key.Subkeys {
		skFp, err := openpgp.Fingerprint(sk.Packet)
		if err == nil {
			tx.Bucket([]byte(bucketSubkey)).Delete(skFp)
		}
		skID, err := openpgp.KeyIDFromPacket(sk.Packet)
		if err == nil {
			delDup(tx, bucketID64, u64Bytes(skID), fp)
			delDup(tx, bucketID32, u32Bytes(uint32(skID)), fp)
		}
	}
	if hash, err := openpgp.SksHash(key); err == nil {
		tx.Bucket([]byte(bucketSksHash)).Delete(hash[:])
	}

	shard := tx.Bucket([]byte(shardName(b.shardOf(fp))))
	return errors.WithStack(shard.Delete(fp))
}

func (b *Backend) FetchByFingerprint(ctx context.Context, fp []byte, inTx bool) ([]*openpgp.PublicKey, error) {
	var out []*openpgp.PublicKey
	err := b.withTx(inTx, false, func(tx *bolt.Tx) error {
		key, err := b.readPrimaryTx(tx, fp)
		if err == nil {
			out = append(out, key)
		} else if openpgp.KindOf(err) != openpgp.KindNotFound {
			return err
		}

		// fp may also be a subkey fingerprint of some other primary key.
		if parentFp := tx.Bucket([]byte(bucketSubkey)).Get(fp); parentFp != nil {
			parent, err := b.readPrimaryTx(tx, parentFp)
			if err == nil {
				out = append(out, parent)
			}
		}
		return nil
	})
	return out, err
}

func (b *Backend) FetchByID(ctx context.Context, keyID uint64, inTx bool) ([]*openpgp.PublicKey, error) {
	var out []*openpgp.PublicKey
	err := b.withTx(inTx, false, func(tx *bolt.Tx) error {
		fps := getDup(tx, bucketID64, u64Bytes(keyID))
		if len(fps) == 0 {
			fps = getDup(tx, bucketID32, u32Bytes(uint32(keyID)))
		}
		seen := map[string]bool{}
		for _, fp := range fps {
			if seen[fpHex(fp)] {
				continue
			}
			seen[fpHex(fp)] = true
			key, err := b.readPrimaryTx(tx, fp)
			if err == nil {
				out = append(out, key)
			}
		}
		return nil
	})
	return out, err
}

func (b *Backend) FetchByText(ctx context.Context, search string) ([]*openpgp.PublicKey, error) {
	words := openpgp.Tokenize(search)
	var out []*openpgp.PublicKey
	err := b.withTx(false, false, func(tx *bolt.Tx) error {
		var sets [][]string
		for word := range words {
			var fps []string
			for _, fp := range getDup(tx, bucketWord, []byte(word)) {
				fps = append(fps, fpHex(fp))
			}
			sets = append(sets, fps)
		}
		common := intersect(sets)
		for _, hexFp := range common {
			fp, err := hex.DecodeString(hexFp)
			if err != nil {
				continue
			}
			key, err := b.readPrimaryTx(tx, fp)
			if err == nil {
				out = append(out, key)
			}
			if len(out) >= maxKeysFor(b) {
				break
			}
		}
		return nil
	})
	return out, err
}

func maxKeysFor(b *Backend) int {
	return 100 // same value as storage.MaxKeysDefault; config maxkeys is not consulted
}

func intersect(sets [][]string) []string {
	if len(sets) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, set := range sets {
		seen := map[string]bool{}
		for _, s := range set {
			if seen[s] {
				continue
			}
			seen[s] = true
			counts[s]++
		}
	}
	var out []string
	for s, c := range counts {
		if c == len(sets) {
			out = append(out, s)
		}
	}
	return out
}

func (b *Backend) FetchBySksHash(ctx context.Context, hash [16]byte) (*openpgp.PublicKey, error) {
	var out *openpgp.PublicKey
	err := b.withTx(false, false, func(tx *bolt.Tx) error {
		fp := tx.Bucket([]byte(bucketSksHash)).Get(hash[:])
		if fp == nil {
			return nil
		}
		key, err := b.readPrimaryTx(tx, fp)
		if err != nil {
			return err
		}
		out = key
		return nil
	})
	return out, err
}

func (b *Backend) Iterate(ctx context.Context, visit func(*openpgp.PublicKey) error) (int, error) {
	count := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		for i := 0; i < b.shards; i++ {
			bucket := tx.Bucket([]byte(shardName(i)))
			if bucket == nil {
				continue
			}
			c := bucket.Cursor()
			for fp, raw := c.First(); fp != nil; fp, raw = c.Next() {
				key, err := decodePrimary(raw)
				if err != nil {
					return err
				}
				if err := visit(key); err != nil {
					return err
				}
				count++
			}
		}
		return nil
	})
	return count, err
}

func (b *Backend) readPrimaryTx(tx *bolt.Tx, fp []byte) (*openpgp.PublicKey, error) {
	shard := tx.Bucket([]byte(shardName(b.shardOf(fp))))
	if shard == nil {
		return nil, errors.WithStack(openpgp.NewError(openpgp.KindNotFound, "no shard"))
	}
	raw := shard.Get(fp)
	if raw == nil {
		return nil, errors.WithStack(openpgp.NewError(openpgp.KindNotFound, "fingerprint not found"))
	}
	return decodePrimary(raw)
}

func decodePrimary(raw []byte) (*openpgp.PublicKey, error) {
	var pkts []*openpgp.Packet
	for len(raw) > 0 {
		if len(raw) < 5 {
			return nil, errors.WithStack(openpgp.ErrInvalidPkt)
		}
		tag := int(raw[0])
		length := binary.BigEndian.Uint32(raw[1:5])
		raw = raw[5:]
		if uint32(len(raw)) < length {
			return nil, errors.WithStack(openpgp.ErrInvalidPkt)
		}
		data := make([]byte, length)
		copy(data, raw[:length])
		pkts = append(pkts, &openpgp.Packet{Tag: tag, NewFormat: true, Data: data})
		raw = raw[length:]
	}
	keys, err := openpgp.ParseKeys(pkts)
	if err != nil {
		return nil, err
	}
	if len(keys) != 1 {
		return nil, errors.Errorf("boltstore: expected exactly one key, got %d", len(keys))
	}
	return keys[0], nil
}

// putDup/getDup/delDup implement the bucket-of-buckets duplicate-value
// index described in storage.go's package doc.
func putDup(tx *bolt.Tx, bucketName string, key, value []byte) error {
	outer := tx.Bucket([]byte(bucketName))
	inner, err := outer.CreateBucketIfNotExists(key)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(inner.Put(value, nil))
}

func getDup(tx *bolt.Tx, bucketName string, key []byte) [][]byte {
	outer := tx.Bucket([]byte(bucketName))
	inner := outer.Bucket(key)
	if inner == nil {
		return nil
	}
	var out [][]byte
	c := inner.Cursor()
	for v, _ := c.First(); v != nil; v, _ = c.Next() {
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, cp)
	}
	return out
}

func delDup(tx *bolt.Tx, bucketName string, key, value []byte) {
	outer := tx.Bucket([]byte(bucketName))
	inner := outer.Bucket(key)
	if inner == nil {
		return
	}
	inner.Delete(value)
}

func u64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func u32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
