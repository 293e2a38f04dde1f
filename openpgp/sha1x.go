package openpgp

import (
	"crypto/md5"
	"crypto/sha1"
	"hash"
)

// sha1x ports onak's sha1x.c: PGP 5.5's "SHA Double", an interleaved
// double-width SHA-1 used by SKS for its key digest (not a security
// primitive, just a legacy hash used as a cache-coherency fingerprint
// between reconciling servers). The input is split byte-by-byte into two
// streams (even offsets, odd offsets), each stream hashed twice in
// parallel with different IV seeding, then the two results of each pair
// are XORed and the pair outputs re-hashed and XOR'd again to produce a
// single 40-byte digest.
type sha1x struct {
	a, b, c, d hash.Hash
	off        int // bytes written so far, for the even/odd split
}

func newSHA1X() *sha1x {
	x := &sha1x{
		a: sha1.New(),
		b: sha1.New(),
		c: sha1.New(),
		d: sha1.New(),
	}
	// b/c/d are pre-seeded with 1/2/3 zero bytes respectively, offsetting
	// their internal block alignment relative to a, matching sha1x_init.
	x.b.Write(make([]byte, 1))
	x.c.Write(make([]byte, 2))
	x.d.Write(make([]byte, 3))
	return x
}

func (x *sha1x) write(p []byte) {
	// a and b consume even-offset bytes, c and d consume odd-offset bytes
	// (offsets counted from the start of the whole message), matching
	// sha1x_update's interleave.
	for i, by := range p {
		if (x.off+i)%2 == 0 {
			x.a.Write([]byte{by})
			x.b.Write([]byte{by})
		} else {
			x.c.Write([]byte{by})
			x.d.Write([]byte{by})
		}
	}
	x.off += len(p)
}

// sum produces the 40-byte SHA1X digest.
func (x *sha1x) sum() [40]byte {
	sa := x.a.Sum(nil)
	sb := x.b.Sum(nil)
	sc := x.c.Sum(nil)
	sd := x.d.Sum(nil)

	var ac, bd [sha1.Size]byte
	for i := 0; i < sha1.Size; i++ {
		ac[i] = sa[i] ^ sc[i]
		bd[i] = sb[i] ^ sd[i]
	}

	e := sha1.New()
	f := sha1.New()
	g := sha1.New()
	h := sha1.New()
	// Second round reseeds with 4/5/6/7 zero bytes (sha1x_digest), not
	// 0/1/2/3 — a fresh set of IV offsets distinct from newSHA1X's first
	// round.
	e.Write(make([]byte, 4))
	f.Write(make([]byte, 5))
	g.Write(make([]byte, 6))
	h.Write(make([]byte, 7))

	e.Write(ac[:])
	f.Write(ac[:])
	g.Write(bd[:])
	h.Write(bd[:])

	se := e.Sum(nil)
	sf := f.Sum(nil)
	sg := g.Sum(nil)
	sh := h.Sum(nil)

	var eg, fh [sha1.Size]byte
	for i := 0; i < sha1.Size; i++ {
		eg[i] = se[i] ^ sg[i]
		fh[i] = sf[i] ^ sh[i]
	}

	var out [40]byte
	copy(out[:20], eg[:])
	copy(out[20:], fh[:])
	return out
}

// SHA1X computes the SKS double-width hash of data in one shot.
func SHA1X(data []byte) [40]byte {
	x := newSHA1X()
	x.write(data)
	return x.sum()
}

// SksHash computes the SKS reconciliation digest of a key: the 128-bit MD5
// hash of the key's canonically-ordered packet stream, matching onak's
// struct skshash and SKS's own set-element hash. SHA1X is a distinct,
// unrelated legacy hash used only by the signature quick-check in
// clean.go (hash algorithm id 4); it is never used for the skshash index.
func SksHash(pk *PublicKey) ([16]byte, error) {
	pkts := FlattenPublicKey(pk)
	sorted := sortPacketsCanonical(pkts)
	var buf []byte
	for _, p := range sorted {
		buf = append(buf, byte(p.Tag))
		buf = append(buf, p.Data...)
	}
	return md5.Sum(buf), nil
}
