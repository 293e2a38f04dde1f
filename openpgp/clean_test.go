package openpgp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupUIDsUnionsSignatures(t *testing.T) {
	uid := &Packet{Tag: TagUserID, NewFormat: true, Data: []byte("dup@example.com")}
	pk := &PublicKey{
		Primary: v4PrimaryPacket(),
		UIDs: []*SignedPacket{
			{Packet: uid, Sigs: []*Packet{v4Sig(1)}},
			{Packet: uid.Clone(), Sigs: []*Packet{v4Sig(2)}},
		},
	}

	DedupUIDs(pk)
	require.Len(t, pk.UIDs, 1)
	assert.Len(t, pk.UIDs[0].Sigs, 2)
}

func TestApplyPolicyDropV3(t *testing.T) {
	v3sig := &Packet{Tag: TagSignature, Data: append([]byte{3, 5, 0x10, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 1, 2}, make([]byte, 2)...)}
	v4sig := v4Sig(9)
	pk := &PublicKey{
		Primary: v4PrimaryPacket(),
		UIDs: []*SignedPacket{
			{Packet: &Packet{Tag: TagUserID, Data: []byte("a")}, Sigs: []*Packet{v3sig, v4sig}},
		},
	}

	ApplyPolicy(pk, PolicyDropV3, 0)
	require.Len(t, pk.UIDs[0].Sigs, 1)
	assert.Equal(t, byte(4), pk.UIDs[0].Sigs[0].Data[0])
}

func TestApplyPolicyLargePackets(t *testing.T) {
	big := make([]byte, defaultMaxUATSize+1)
	pk := &PublicKey{
		Primary: v4PrimaryPacket(),
		UIDs: []*SignedPacket{
			{Packet: &Packet{Tag: TagUserAttribute, Data: big}},
			{Packet: &Packet{Tag: TagUserID, Data: []byte("small")}},
		},
	}

	ApplyPolicy(pk, PolicyLargePackets, 0)
	require.Len(t, pk.UIDs, 1)
	assert.Equal(t, TagUserID, pk.UIDs[0].Packet.Tag)
}

// v4UIDCertSig builds a v4 certification over primary.Data+uidData with no
// hashed or unhashed subpackets, and its quick-check bytes set to either
// the correctly recomputed value or, when corruptQuickCheck is true, a
// deliberately wrong one.
func v4UIDCertSig(t *testing.T, primary, uidData []byte, corruptQuickCheck bool) *Packet {
	t.Helper()
	fixed := []byte{4, 0x10, 1, hashAlgoSHA1, 0, 0} // version,sigtype,pkalgo,hashalgo,hashedlen=0
	h := newQuickHash(hashAlgoSHA1)
	chunks := appendFramedChunk(nil, 0x99, 2, primary)
	chunks = appendFramedChunk(chunks, 0xB4, 4, uidData)
	chunks = append(chunks, fixed, []byte{4, 0xFF, 0, 0, 0, byte(len(fixed))})
	for _, c := range chunks {
		h.Write(c)
	}
	sum := h.Sum(nil)
	qc0, qc1 := sum[0], sum[1]
	if corruptQuickCheck {
		qc1 ^= 0xFF
	}
	data := append(append([]byte{}, fixed...), 0, 0, qc0, qc1)
	return &Packet{Tag: TagSignature, Data: data}
}

func TestApplyPolicyCheckSigHashDropsMismatch(t *testing.T) {
	primary := v4PrimaryPacket()
	uidData := []byte("a")
	validSig := v4UIDCertSig(t, primary.Data, uidData, false)
	mismatchSig := v4UIDCertSig(t, primary.Data, uidData, true)

	pk := &PublicKey{
		Primary: primary,
		UIDs: []*SignedPacket{
			{Packet: &Packet{Tag: TagUserID, Data: uidData}, Sigs: []*Packet{mismatchSig, validSig}},
		},
	}

	ApplyPolicy(pk, PolicyCheckSigHash, 0)
	require.Len(t, pk.UIDs[0].Sigs, 1)
	assert.Equal(t, validSig, pk.UIDs[0].Sigs[0])
}

func TestSigQuickCheckOKOnPrimaryRevocation(t *testing.T) {
	primary := v4PrimaryPacket()
	fixed := []byte{4, 0x20, 1, hashAlgoSHA1, 0, 0} // sigtype 0x20: key revocation
	h := newQuickHash(hashAlgoSHA1)
	chunks := appendFramedChunk(nil, 0x99, 2, primary.Data)
	chunks = append(chunks, fixed, []byte{4, 0xFF, 0, 0, 0, byte(len(fixed))})
	for _, c := range chunks {
		h.Write(c)
	}
	sum := h.Sum(nil)
	data := append(append([]byte{}, fixed...), 0, 0, sum[0], sum[1])
	sig := &Packet{Tag: TagSignature, Data: data}

	assert.True(t, sigQuickCheckOK(primary, nil, sig))

	corruptData := append([]byte{}, data...)
	corruptData[len(corruptData)-1] ^= 0xFF
	corrupt := &Packet{Tag: TagSignature, Data: corruptData}
	assert.False(t, sigQuickCheckOK(primary, nil, corrupt))
}

func TestSigQuickCheckOKPassesThroughUnparsableSignatures(t *testing.T) {
	primary := v4PrimaryPacket()
	// Too short to contain even the fixed v4 header.
	tooShort := &Packet{Tag: TagSignature, Data: []byte{4, 1}}
	assert.True(t, sigQuickCheckOK(primary, nil, tooShort))

	// Unknown hash algorithm id: can't verify, so don't drop.
	unknownAlgo := &Packet{Tag: TagSignature, Data: []byte{4, 0x10, 1, 0xFE, 0, 0, 0, 0, 0xAA, 0xBB}}
	assert.True(t, sigQuickCheckOK(primary, nil, unknownAlgo))
}
