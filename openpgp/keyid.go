package openpgp

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Public-key algorithm IDs we need to recognise for fingerprinting
// (RFC 4880 §9.1).
const (
	pkaRSAEncryptOrSign = 1
)

// mpiLen returns the byte length of a big-endian MPI (2-byte bit count
// prefix followed by the value) starting at off in data, and the offset
// just past it. Mirrors onak's keyid.c MPI walk.
func mpiLen(data []byte, off int) (n, next int, err error) {
	if off+2 > len(data) {
		return 0, 0, errors.WithStack(ErrInvalidPkt)
	}
	bits := int(binary.BigEndian.Uint16(data[off:]))
	bytes := (bits + 7) / 8
	next = off + 2 + bytes
	if next > len(data) {
		return 0, 0, errors.WithStack(ErrInvalidPkt)
	}
	return bytes, next, nil
}

// Fingerprint computes the fingerprint of a public-key (tag 6/14) packet,
// per version: v3 is MD5 over the RSA modulus+exponent MPI bodies (no
// framing byte), v4 is SHA-1 over 0x99||len16||body, v5 is SHA-256 over
// 0x9A||len32||body.
func Fingerprint(pkt *Packet) ([]byte, error) {
	if pkt == nil || len(pkt.Data) < 1 {
		return nil, errors.WithStack(ErrInvalidPkt)
	}
	ver := pkt.Data[0]
	switch ver {
	case 2, 3:
		return fingerprintV3(pkt.Data)
	case 4:
		return fingerprintFramed(sha1.New(), 0x99, 2, pkt.Data)
	case 5:
		return fingerprintFramed(sha256.New(), 0x9A, 4, pkt.Data)
	default:
		return nil, Errorf(KindUnknownVer, "unknown public key version %d", ver)
	}
}

func fingerprintV3(data []byte) ([]byte, error) {
	// v3: ver(1) created(4) validity(2) algo(1) then MPIs.
	if len(data) < 8 {
		return nil, errors.WithStack(ErrInvalidPkt)
	}
	algo := data[7]
	if algo != pkaRSAEncryptOrSign {
		return nil, Errorf(KindUnsupportedFeature, "v3 key with non-RSA algorithm %d", algo)
	}
	nLen, next, err := mpiLen(data, 8)
	if err != nil {
		return nil, err
	}
	_ = nLen
	eLen, next2, err := mpiLen(data, next)
	if err != nil {
		return nil, err
	}
	_ = eLen
	h := md5.New()
	h.Write(data[8+2 : next])   // modulus value only, no bit-count prefix
	h.Write(data[next+2 : next2]) // exponent value only
	return h.Sum(nil), nil
}

func fingerprintFramed(h interface{ Write([]byte) (int, error); Sum([]byte) []byte }, tag byte, lenBytes int, data []byte) ([]byte, error) {
	switch lenBytes {
	case 2:
		var hdr [3]byte
		hdr[0] = tag
		binary.BigEndian.PutUint16(hdr[1:], uint16(len(data)))
		h.Write(hdr[:])
	case 4:
		var hdr [5]byte
		hdr[0] = tag
		binary.BigEndian.PutUint32(hdr[1:], uint32(len(data)))
		h.Write(hdr[:])
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// KeyID extracts the 64-bit key id from a v4/v5 fingerprint: the low 8
// bytes for v4 (SHA-1, 20 bytes), the high 8 bytes for v5 (SHA-256, 32
// bytes). v3/v2 keys have no keyid derivable from their MD5 fingerprint
// alone (it is derived off the RSA modulus, not the fingerprint) — use
// KeyIDFromPacket for those.
func KeyID(fp []byte) (uint64, error) {
	switch len(fp) {
	case sha1.Size: // v4, 20 bytes
		return binary.BigEndian.Uint64(fp[len(fp)-8:]), nil
	case sha256.Size: // v5, 32 bytes: keyid is the FIRST 8 bytes
		return binary.BigEndian.Uint64(fp[:8]), nil
	default:
		return 0, errors.WithStack(ErrInvalidPkt)
	}
}

// ShortID returns the low 32 bits of the key id (the fetch-by-id "short"
// form, known to collide).
func ShortID(keyID uint64) uint32 {
	return uint32(keyID)
}

// KeyIDFromPacket is a convenience wrapper combining Fingerprint and KeyID,
// the path most callers want. v2/v3 keys take the fast path straight off
// the RSA modulus (v3RSAKeyIDFast), since their keyid is not derivable from
// the MD5 fingerprint alone.
func KeyIDFromPacket(pkt *Packet) (uint64, error) {
	if pkt != nil && len(pkt.Data) > 0 && (pkt.Data[0] == 2 || pkt.Data[0] == 3) {
		return v3RSAKeyIDFast(pkt.Data)
	}
	fp, err := Fingerprint(pkt)
	if err != nil {
		return 0, err
	}
	return KeyID(fp)
}

// v3RSAKeyIDFast implements onak's get_keyid fast path directly off the
// modulus bytes for v2/v3 keys, bypassing a full MD5 fingerprint: the
// keyid is simply the last 8 bytes of the modulus MPI. This is the only
// correct way to derive a v3 keyid — the MD5 fingerprint does
// not contain it — so KeyIDFromPacket always routes v2/v3 packets here.
func v3RSAKeyIDFast(data []byte) (uint64, error) {
	if len(data) < 8 || data[7] != pkaRSAEncryptOrSign {
		return 0, Errorf(KindUnsupportedFeature, "not a v3 RSA key")
	}
	nLen, next, err := mpiLen(data, 8)
	if err != nil {
		return 0, err
	}
	if nLen < 8 {
		return 0, errors.WithStack(ErrInvalidPkt)
	}
	modulus := data[next-nLen : next]
	return binary.BigEndian.Uint64(modulus[len(modulus)-8:]), nil
}
