package openpgp

import "bytes"

// Packet tags relevant to this spec (RFC 4880 §4.3).
const (
	TagSignature      = 2
	TagPublicKey      = 6
	TagUserID         = 13
	TagPublicSubkey   = 14
	TagUserAttribute  = 17
)

// Packet is an immutable, owned OpenPGP packet: a tag, a format bit, and
// the raw packet body. Two packets are equal iff tag, length and data are
// bytewise identical. Signature-equality for merge purposes is weaker and
// lives in merge.go.
type Packet struct {
	Tag       int
	NewFormat bool
	Data      []byte
}

// Length is the size of Data in bytes.
func (p *Packet) Length() int {
	if p == nil {
		return 0
	}
	return len(p.Data)
}

// Equal implements bytewise packet equality.
func (p *Packet) Equal(other *Packet) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Tag == other.Tag && bytes.Equal(p.Data, other.Data)
}

// Clone deep-copies a packet. Merge, uid/subkey dedup and PublicKey.Clone
// use it so that each packet is exclusively owned by the PublicKey that
// contains it. FlattenPublicKey does not copy: it returns the key's own
// packets.
func (p *Packet) Clone() *Packet {
	if p == nil {
		return nil
	}
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return &Packet{Tag: p.Tag, NewFormat: p.NewFormat, Data: data}
}

func clonePackets(pkts []*Packet) []*Packet {
	out := make([]*Packet, len(pkts))
	for i, p := range pkts {
		out[i] = p.Clone()
	}
	return out
}

// findPacket reports whether list contains a packet bytewise-equal to pkt.
func findPacket(list []*Packet, pkt *Packet) bool {
	for _, p := range list {
		if p.Equal(pkt) {
			return true
		}
	}
	return false
}
