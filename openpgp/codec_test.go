package openpgp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadStreamRoundTrip(t *testing.T) {
	pkts := []*Packet{
		{Tag: TagPublicKey, NewFormat: true, Data: bytes.Repeat([]byte{0xAB}, 10)},
		{Tag: TagUserID, NewFormat: true, Data: []byte("Alice <alice@example.com>")},
		{Tag: TagSignature, NewFormat: true, Data: bytes.Repeat([]byte{0x01}, 40)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, pkts))

	got, err := ReadStream(&buf, 0)
	require.NoError(t, err)
	require.Len(t, got, len(pkts))
	for i := range pkts {
		assert.True(t, pkts[i].Equal(got[i]), "packet %d should round-trip", i)
	}
}

func TestReadStreamOldFormat(t *testing.T) {
	// Old-format tag 6 (public key), 1-byte length, 5 bytes of body.
	var buf bytes.Buffer
	buf.Write([]byte{0x80 | (6 << 2) | 0x00, 0x05})
	buf.Write([]byte{4, 0, 0, 0, 0})

	got, err := ReadStream(&buf, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, TagPublicKey, got[0].Tag)
	assert.False(t, got[0].NewFormat)
	assert.Len(t, got[0].Data, 5)
}

func TestReadStreamMaxKeysStopsAtBoundary(t *testing.T) {
	pkts := []*Packet{
		{Tag: TagPublicKey, NewFormat: true, Data: []byte{1}},
		{Tag: TagUserID, NewFormat: true, Data: []byte("a")},
		{Tag: TagPublicKey, NewFormat: true, Data: []byte{2}},
		{Tag: TagUserID, NewFormat: true, Data: []byte("b")},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, pkts))

	got, err := ReadStream(&buf, 1)
	require.NoError(t, err)
	// Stops as soon as the first (and only requested) key is seen,
	// including whatever packet satisfied the boundary.
	assert.Equal(t, TagPublicKey, got[len(got)-1].Tag)
}

func TestReadStreamRejectsBadHeaderBit(t *testing.T) {
	buf := bytes.NewReader([]byte{0x00})
	_, err := ReadStream(buf, 0)
	assert.Error(t, err)
	assert.Equal(t, KindInvalidPkt, KindOf(err))
}

func TestReadStreamRejectsPartialLength(t *testing.T) {
	// New format, tag 6, length byte in the partial-body range (224..254).
	buf := bytes.NewReader([]byte{0x80 | 0x40 | 6, 224})
	_, err := ReadStream(buf, 0)
	assert.Error(t, err)
	assert.Equal(t, KindUnsupportedFeature, KindOf(err))
}
