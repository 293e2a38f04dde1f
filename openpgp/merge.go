package openpgp

import "github.com/pkg/errors"

// sigIssuer extracts the issuer key id of a signature packet for the
// purposes of merge's weaker signature-equality rule: two signatures
// merge-equal if they share an issuer key id, even if the packet bytes
// differ — e.g. a signature re-issued with an updated creation-time
// subpacket. Signatures that fail to decode are treated as unique (never
// merge-equal to anything), matching onak's conservative fallback in
// merge.c's compare_signatures.
func sigIssuer(pkt *Packet) (uint64, bool) {
	info, err := DecodeSignature(pkt)
	if err != nil || !info.HasIssuer {
		return 0, false
	}
	return info.IssuerID, true
}

func unionSigsByIssuer(a, b []*Packet) []*Packet {
	out := clonePackets(a)
	seen := make(map[uint64]bool)
	for _, p := range a {
		if id, ok := sigIssuer(p); ok {
			seen[id] = true
		}
	}
	for _, p := range b {
		id, ok := sigIssuer(p)
		if ok && seen[id] {
			continue
		}
		if !ok && findPacket(out, p) {
			continue
		}
		out = append(out, p.Clone())
		if ok {
			seen[id] = true
		}
	}
	return out
}

func deltaSigsByIssuer(old, new []*Packet) []*Packet {
	oldSeen := make(map[uint64]bool)
	for _, p := range old {
		if id, ok := sigIssuer(p); ok {
			oldSeen[id] = true
		}
	}
	var out []*Packet
	for _, p := range new {
		id, ok := sigIssuer(p)
		if ok {
			if !oldSeen[id] {
				out = append(out, p.Clone())
			}
			continue
		}
		if !findPacket(old, p) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// unionPackets unions a and b by bytewise equality (used for the direct-key
// revocation list and for matching up uid/subkey grouping packets).
func unionPackets(a, b []*Packet) []*Packet {
	out := clonePackets(a)
	for _, p := range b {
		if !findPacket(out, p) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// findSignedPacket returns the element of list whose grouping packet is
// bytewise-equal to pkt, or nil.
func findSignedPacket(list []*SignedPacket, pkt *Packet) *SignedPacket {
	for _, sp := range list {
		if sp.Packet.Equal(pkt) {
			return sp
		}
	}
	return nil
}

// Merge unions old and new into merged, and computes delta, the subset of
// packets present in new but not in old. old and new must have the same
// primary key id.
func Merge(old, new *PublicKey) (merged, delta *PublicKey, err error) {
	if old == nil || new == nil || old.Primary == nil || new.Primary == nil {
		return nil, nil, errors.WithStack(ErrInvalidPkt)
	}
	oldID, err := old.KeyID()
	if err != nil {
		return nil, nil, err
	}
	newID, err := new.KeyID()
	if err != nil {
		return nil, nil, err
	}
	if oldID != newID {
		return nil, nil, Errorf(KindInvalidParam, "merge: key id mismatch %016X != %016X", oldID, newID)
	}

	merged = &PublicKey{Primary: old.Primary.Clone()}
	delta = &PublicKey{Primary: old.Primary.Clone()}

	merged.Revocations = unionPackets(old.Revocations, new.Revocations)
	delta.Revocations = deltaPackets(old.Revocations, new.Revocations)

	merged.UIDs, delta.UIDs = mergeSignedList(old.UIDs, new.UIDs)
	merged.Subkeys, delta.Subkeys = mergeSignedList(old.Subkeys, new.Subkeys)

	return merged, delta, nil
}

func deltaPackets(old, new []*Packet) []*Packet {
	var out []*Packet
	for _, p := range new {
		if !findPacket(old, p) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// mergeSignedList unions two lists of grouping packets (uids or subkeys),
// unioning each matched pair's signature lists by issuer key id. Entries in
// new with no bytewise match in old are carried wholesale into both merged
// and delta.
func mergeSignedList(old, new []*SignedPacket) (merged, delta []*SignedPacket) {
	merged = make([]*SignedPacket, 0, len(old))
	for _, sp := range old {
		merged = append(merged, sp.clone())
	}

	for _, nsp := range new {
		existing := findSignedPacket(old, nsp.Packet)
		if existing == nil {
			merged = append(merged, nsp.clone())
			delta = append(delta, nsp.clone())
			continue
		}
		sigDelta := deltaSigsByIssuer(existing.Sigs, nsp.Sigs)
		if len(sigDelta) == 0 {
			continue
		}
		// Find the corresponding entry in merged (same grouping packet)
		// and extend its signature set.
		for _, msp := range merged {
			if msp.Packet.Equal(nsp.Packet) {
				msp.Sigs = unionSigsByIssuer(msp.Sigs, nsp.Sigs)
				break
			}
		}
		delta = append(delta, &SignedPacket{Packet: nsp.Packet.Clone(), Sigs: sigDelta})
	}
	return merged, delta
}
