package openpgp

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintV4(t *testing.T) {
	body := []byte{4, 0, 0, 0, 0, 1, 0, 1, 0x01}
	pkt := &Packet{Tag: TagPublicKey, Data: body}

	fp, err := Fingerprint(pkt)
	require.NoError(t, err)
	assert.Len(t, fp, sha1.Size)

	want := sha1.New()
	var hdr [3]byte
	hdr[0] = 0x99
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(body)))
	want.Write(hdr[:])
	want.Write(body)
	assert.Equal(t, want.Sum(nil), fp)
}

func TestFingerprintV5(t *testing.T) {
	body := []byte{5, 0, 0, 0, 0, 1, 0, 1, 0x01, 0x02}
	pkt := &Packet{Tag: TagPublicKey, Data: body}

	fp, err := Fingerprint(pkt)
	require.NoError(t, err)
	assert.Len(t, fp, sha256.Size)
}

func TestKeyIDv4UsesLast8Bytes(t *testing.T) {
	fp := make([]byte, sha1.Size)
	for i := range fp {
		fp[i] = byte(i + 1)
	}
	id, err := KeyID(fp)
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian.Uint64(fp[len(fp)-8:]), id)
}

func TestKeyIDv5UsesFirst8Bytes(t *testing.T) {
	fp := make([]byte, sha256.Size)
	for i := range fp {
		fp[i] = byte(i + 1)
	}
	id, err := KeyID(fp)
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian.Uint64(fp[:8]), id)
}

func TestFingerprintUnknownVersion(t *testing.T) {
	pkt := &Packet{Tag: TagPublicKey, Data: []byte{9, 0, 0}}
	_, err := Fingerprint(pkt)
	assert.Equal(t, KindUnknownVer, KindOf(err))
}

func TestKeyIDRejectsV3FingerprintLength(t *testing.T) {
	// A v3 MD5 fingerprint (16 bytes) carries no well-defined keyid of its
	// own — KeyIDFromPacket must route v3 packets around KeyID entirely,
	// straight to v3RSAKeyIDFast.
	_, err := KeyID(make([]byte, 16))
	assert.Error(t, err)
}

func TestKeyIDFromPacketV3UsesModulusTrailingBytes(t *testing.T) {
	// ver(1) created(4) validity(2) algo(1)=RSA, then an 8-byte (64-bit)
	// modulus MPI, then a 1-byte exponent MPI.
	modulus := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	data := []byte{3, 0, 0, 0, 0, 0, 0, pkaRSAEncryptOrSign}
	data = append(data, byte(len(modulus)*8>>8), byte(len(modulus)*8&0xFF))
	data = append(data, modulus...)
	data = append(data, 0, 1, 0x01) // 1-bit exponent MPI

	pkt := &Packet{Tag: TagPublicKey, Data: data}
	id, err := KeyIDFromPacket(pkt)
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian.Uint64(modulus), id)

	direct, err := v3RSAKeyIDFast(data)
	require.NoError(t, err)
	assert.Equal(t, direct, id)
}
