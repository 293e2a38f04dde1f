package openpgp

import (
	"bytes"
	"sort"
)

// sortPacketsCanonical orders packets the way SKS does before hashing a
// key: by tag, then lexicographically by raw body bytes. This makes the
// digest independent of the order packets happened to arrive in off the
// wire, which in turn is what lets two servers that both hold the same
// packet set agree on its digest regardless of how each one assembled it.
func sortPacketsCanonical(pkts []*Packet) []*Packet {
	out := make([]*Packet, len(pkts))
	copy(out, pkts)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tag != out[j].Tag {
			return out[i].Tag < out[j].Tag
		}
		return bytes.Compare(out[i].Data, out[j].Data) < 0
	})
	return out
}
