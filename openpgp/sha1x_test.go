package openpgp

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Known-answer vectors for sha1x_init/sha1x_update/sha1x_digest's exact IV
// seeding, independent of this package's own round-trip. A seeding
// regression like the 0/1/2/3-vs-4/5/6/7 digest-phase bug would change
// these outputs but not fail TestSHA1XDeterministic.
func TestSHA1XKnownVectors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "061c132ce18f8e6da51d43827a3f35daca2537b0af361872a1ece3ae031e7eb66892d75a7ec3e115"},
		{"abc", "b89a1887940ff40d54cb650c9fe2d82594df1936c069ffce30706d824a779db1765d0b4d023c6149"},
		{"hello world", "e1ef292a6bf2746338afeb4147d16672208c340070488713997d020d1600e0ae6953e85079a282b5"},
	}
	for _, c := range cases {
		want, err := hex.DecodeString(c.want)
		assert.NoError(t, err)
		got := SHA1X([]byte(c.in))
		assert.Equal(t, want, got[:], "input %q", c.in)
	}
}

func TestSHA1XDeterministic(t *testing.T) {
	a := SHA1X([]byte("hello world"))
	b := SHA1X([]byte("hello world"))
	assert.Equal(t, a, b)
}

func TestSHA1XDiffersOnInput(t *testing.T) {
	a := SHA1X([]byte("hello world"))
	b := SHA1X([]byte("hello worlD"))
	assert.NotEqual(t, a, b)
}

func TestSHA1XIsFortyBytes(t *testing.T) {
	out := SHA1X([]byte("x"))
	assert.Len(t, out, 40)
}

func TestSksHashIsOrderIndependent(t *testing.T) {
	primary := v4PrimaryPacket()
	uidA := &Packet{Tag: TagUserID, Data: []byte("a@example.com")}
	uidB := &Packet{Tag: TagUserID, Data: []byte("b@example.com")}

	k1 := &PublicKey{Primary: primary, UIDs: []*SignedPacket{{Packet: uidA}, {Packet: uidB}}}
	k2 := &PublicKey{Primary: primary, UIDs: []*SignedPacket{{Packet: uidB}, {Packet: uidA}}}

	h1, err := SksHash(k1)
	assert.NoError(t, err)
	h2, err := SksHash(k2)
	assert.NoError(t, err)
	assert.Equal(t, h1, h2)
}
