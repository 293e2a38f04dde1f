package openpgp

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
)

// CleanPolicy is a bitmask of the key-cleaning policies onak supports.
// They compose: a caller might want both UpdateOnly and CheckSigHash.
type CleanPolicy uint

const (
	// PolicyUpdateOnly refuses brand new keys: only keys already in
	// storage may be updated. ApplyPolicy does not act on it; callers pass
	// it on as storage.UpdateKeys' updateOnly argument.
	PolicyUpdateOnly CleanPolicy = 1 << iota
	// PolicyDropV3 discards every v2/v3 signature and every v2/v3 subkey,
	// keeping only v4+ material below the primary packet (the primary
	// packet itself is kept whatever its version).
	PolicyDropV3
	// PolicyLargePackets drops user attribute packets and their
	// signatures above a configured size ceiling.
	PolicyLargePackets
	// PolicyCheckSigHash recomputes each signature's 16-bit quick-check
	// hash and drops those that mismatch.
	PolicyCheckSigHash
)

const defaultMaxUATSize = 8192

// Hash algorithm ids consulted by the quick-check (RFC 4880 §9.4, plus
// onak's SHA1X extension inherited from RFC 2440 / PGP 5.5).
const (
	hashAlgoMD5    = 1
	hashAlgoSHA1   = 2
	hashAlgoSHA1X  = 4
	hashAlgoSHA256 = 8
	hashAlgoSHA384 = 9
	hashAlgoSHA512 = 10
	hashAlgoSHA224 = 11
)

// DedupUIDs removes user ids/attributes that are bytewise duplicates of an
// earlier entry, unioning their signature lists into the surviving copy.
// Subkeys are deduped the same way by ApplyPolicy's caller via
// DedupSubkeys.
func DedupUIDs(pk *PublicKey) {
	pk.UIDs = dedupSignedList(pk.UIDs)
}

// DedupSubkeys is the subkey analogue of DedupUIDs.
func DedupSubkeys(pk *PublicKey) {
	pk.Subkeys = dedupSignedList(pk.Subkeys)
}

func dedupSignedList(list []*SignedPacket) []*SignedPacket {
	var out []*SignedPacket
	for _, sp := range list {
		if existing := findSignedPacket(out, sp.Packet); existing != nil {
			existing.Sigs = unionSigsByIssuer(existing.Sigs, sp.Sigs)
			continue
		}
		out = append(out, sp.clone())
	}
	return out
}

// ApplyPolicy rewrites pk in place under the given policy mask. maxUATSize
// is only consulted when PolicyLargePackets is set; pass 0 to use
// defaultMaxUATSize.
func ApplyPolicy(pk *PublicKey, policy CleanPolicy, maxUATSize int) {
	if maxUATSize <= 0 {
		maxUATSize = defaultMaxUATSize
	}

	if policy&PolicyDropV3 != 0 {
		pk.Revocations = filterPackets(pk.Revocations, func(p *Packet) bool {
			return !isV3Signature(p)
		})
		for _, uid := range pk.UIDs {
			uid.Sigs = filterPackets(uid.Sigs, func(p *Packet) bool { return !isV3Signature(p) })
		}
		pk.Subkeys = filterSigned(pk.Subkeys, func(sp *SignedPacket) bool {
			d := sp.Packet.Data
			return len(d) == 0 || (d[0] != 2 && d[0] != 3)
		})
		for _, sk := range pk.Subkeys {
			sk.Sigs = filterPackets(sk.Sigs, func(p *Packet) bool { return !isV3Signature(p) })
		}
	}

	if policy&PolicyLargePackets != 0 {
		pk.UIDs = filterSigned(pk.UIDs, func(sp *SignedPacket) bool {
			return sp.Packet.Tag != TagUserAttribute || sp.Packet.Length() <= maxUATSize
		})
	}

	if policy&PolicyCheckSigHash != 0 {
		pk.Revocations = filterPackets(pk.Revocations, func(p *Packet) bool {
			return sigQuickCheckOK(pk.Primary, nil, p)
		})
		for _, uid := range pk.UIDs {
			target := uid.Packet
			uid.Sigs = filterPackets(uid.Sigs, func(p *Packet) bool {
				return sigQuickCheckOK(pk.Primary, target, p)
			})
		}
		for _, sk := range pk.Subkeys {
			target := sk.Packet
			sk.Sigs = filterPackets(sk.Sigs, func(p *Packet) bool {
				return sigQuickCheckOK(pk.Primary, target, p)
			})
		}
	}
}

func isV3Signature(p *Packet) bool {
	return p.Tag == TagSignature && len(p.Data) > 0 && (p.Data[0] == 2 || p.Data[0] == 3)
}

// sigQuickCheckOK ports onak's check_packet_sighash (sigcheck.c): it
// recomputes the 16-bit quick-check hash a signature carries and compares
// it against the hash's first two bytes. primary is
// the key's own public-key packet, always hashed; target is the packet
// the signature actually certifies — nil for a self-signature or
// revocation directly on the primary key, the UID/UAT packet for a
// certification, or the subkey packet for a binding signature.
//
// A signature this function cannot evaluate (truncated data, an unknown
// signature version, or a hash algorithm we don't implement) is reported
// OK: PolicyCheckSigHash only drops confirmed mismatches, never packets it
// simply couldn't check.
func sigQuickCheckOK(primary, target, sig *Packet) bool {
	if primary == nil || sig == nil || len(sig.Data) < 1 {
		return true
	}

	var chunks [][]byte
	chunks = appendFramedChunk(chunks, 0x99, 2, primary.Data)

	var hashAlgo byte
	var wantHi, wantLo byte

	switch sig.Data[0] {
	case 2, 3: // v2/v3
		if len(sig.Data) < 19 {
			return true
		}
		hashAlgo = sig.Data[16]
		if target != nil {
			if target.Tag == TagPublicSubkey {
				chunks = appendFramedChunk(chunks, 0x99, 2, target.Data)
			} else {
				chunks = append(chunks, target.Data)
			}
		}
		chunks = append(chunks, sig.Data[2:7])
		wantHi, wantLo = sig.Data[17], sig.Data[18]
	case 4: // v4
		if len(sig.Data) < 6 {
			return true
		}
		hashAlgo = sig.Data[3]
		if target != nil {
			switch target.Tag {
			case TagPublicSubkey:
				chunks = appendFramedChunk(chunks, 0x99, 2, target.Data)
			case TagUserID:
				chunks = appendFramedChunk(chunks, 0xB4, 4, target.Data)
			case TagUserAttribute:
				chunks = appendFramedChunk(chunks, 0xD1, 4, target.Data)
			default:
				chunks = append(chunks, target.Data)
			}
		}

		siglen := int(sig.Data[4])<<8 + int(sig.Data[5]) + 6
		if siglen+2 > len(sig.Data) {
			return true
		}
		chunks = append(chunks, sig.Data[:siglen])
		chunks = append(chunks, []byte{
			4, 0xFF,
			byte(siglen >> 24), byte(siglen >> 16), byte(siglen >> 8), byte(siglen),
		})

		unhashedLen := int(sig.Data[siglen])<<8 + int(sig.Data[siglen+1])
		want := siglen + unhashedLen + 2
		if want+2 > len(sig.Data) {
			return true
		}
		wantHi, wantLo = sig.Data[want], sig.Data[want+1]
	default:
		return true
	}

	h := newQuickHash(hashAlgo)
	if h == nil {
		return true // hash algorithm we don't implement; can't second-guess
	}
	for _, c := range chunks {
		h.Write(c)
	}
	sum := h.Sum(nil)
	if len(sum) < 2 {
		return true
	}
	return sum[0] == wantHi && sum[1] == wantLo
}

// appendFramedChunk appends a packet-framing prefix (0x99||len16 for keys
// and subkeys, 0xB4/0xD1||len32 for UIDs/UATs) followed by the packet body
// to chunks, matching sigcheck.c's keyheader/packetheader construction.
func appendFramedChunk(chunks [][]byte, tag byte, lenBytes int, data []byte) [][]byte {
	switch lenBytes {
	case 2:
		hdr := make([]byte, 3)
		hdr[0] = tag
		binary.BigEndian.PutUint16(hdr[1:], uint16(len(data)))
		chunks = append(chunks, hdr)
	case 4:
		hdr := make([]byte, 5)
		hdr[0] = tag
		binary.BigEndian.PutUint32(hdr[1:], uint32(len(data)))
		chunks = append(chunks, hdr)
	}
	return append(chunks, data)
}

// quickHash is the subset of hash.Hash the quick-check needs; sha1x
// (openpgp/sha1x.go) satisfies it via sha1xHash below without itself
// implementing the streaming Reset/Size/BlockSize methods.
type quickHash interface {
	Write([]byte) (int, error)
	Sum([]byte) []byte
}

// newQuickHash returns the hasher for a signature's declared hash
// algorithm id, or nil if unsupported (RIPEMD160 isn't in the Go standard
// library and has no caller in this tree to justify vendoring one).
func newQuickHash(algo byte) quickHash {
	switch algo {
	case hashAlgoMD5:
		return md5.New()
	case hashAlgoSHA1:
		return sha1.New()
	case hashAlgoSHA1X:
		return &sha1xHash{x: newSHA1X()}
	case hashAlgoSHA224:
		return sha256.New224()
	case hashAlgoSHA256:
		return sha256.New()
	case hashAlgoSHA384:
		return sha512.New384()
	case hashAlgoSHA512:
		return sha512.New()
	default:
		return nil
	}
}

// sha1xHash adapts sha1x to the quickHash interface.
type sha1xHash struct{ x *sha1x }

func (s *sha1xHash) Write(p []byte) (int, error) {
	s.x.write(p)
	return len(p), nil
}

func (s *sha1xHash) Sum(b []byte) []byte {
	out := s.x.sum()
	return append(b, out[:]...)
}

func filterPackets(list []*Packet, keep func(*Packet) bool) []*Packet {
	var out []*Packet
	for _, p := range list {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func filterSigned(list []*SignedPacket, keep func(*SignedPacket) bool) []*SignedPacket {
	var out []*SignedPacket
	for _, sp := range list {
		if keep(sp) {
			out = append(out, sp)
		}
	}
	return out
}
