package openpgp

import "github.com/pkg/errors"

// SignedPacket pairs a primary packet (a UID, user attribute, or subkey)
// with the signatures that apply to it. Sigs is kept in encounter order;
// merge.go re-unions it by issuer key id, not by position.
type SignedPacket struct {
	Packet *Packet
	Sigs   []*Packet
}

func (sp *SignedPacket) clone() *SignedPacket {
	if sp == nil {
		return nil
	}
	return &SignedPacket{Packet: sp.Packet.Clone(), Sigs: clonePackets(sp.Sigs)}
}

// PublicKey is the assembled in-memory form of one OpenPGP transferable
// public key: a primary key packet, any direct-key revocation/self
// signatures, its user ids/attributes (each with their own signatures),
// and its subkeys (each with their own binding/revocation signatures).
// Next chains additional keys parsed from the same stream.
type PublicKey struct {
	Primary     *Packet
	Revocations []*Packet
	UIDs        []*SignedPacket
	Subkeys     []*SignedPacket
	Next        *PublicKey
}

// assembler states, mirroring onak's parsekey.c state machine.
type assemblerState int

const (
	stateOutside assemblerState = iota
	stateOnPrimary
	stateOnUID
	stateOnSubkey
)

// ParseKeys folds a flat packet stream into a list of assembled keys via
// an outside/on_primary/on_uid/on_subkey walk. A signature packet attaches
// to whichever of (primary, current uid, current subkey) is open; a
// signature before any primary packet is dropped (it cannot belong to
// anything).
func ParseKeys(packets []*Packet) ([]*PublicKey, error) {
	var keys []*PublicKey
	var cur *PublicKey
	state := stateOutside

	for _, pkt := range packets {
		switch pkt.Tag {
		case TagPublicKey:
			cur = &PublicKey{Primary: pkt}
			keys = append(keys, cur)
			state = stateOnPrimary

		case TagPublicSubkey:
			if cur == nil {
				return keys, errors.WithStack(ErrInvalidPkt)
			}
			cur.Subkeys = append(cur.Subkeys, &SignedPacket{Packet: pkt})
			state = stateOnSubkey

		case TagUserID, TagUserAttribute:
			if cur == nil {
				return keys, errors.WithStack(ErrInvalidPkt)
			}
			cur.UIDs = append(cur.UIDs, &SignedPacket{Packet: pkt})
			state = stateOnUID

		case TagSignature:
			if cur == nil {
				continue
			}
			switch state {
			case stateOnPrimary:
				cur.Revocations = append(cur.Revocations, pkt)
			case stateOnUID:
				last := cur.UIDs[len(cur.UIDs)-1]
				last.Sigs = append(last.Sigs, pkt)
			case stateOnSubkey:
				last := cur.Subkeys[len(cur.Subkeys)-1]
				last.Sigs = append(last.Sigs, pkt)
			}

		default:
			// Unsupported/unknown packet types (e.g. trust packets) are
			// preserved nowhere; they simply don't attach to anything.
		}
	}
	return keys, nil
}

// FlattenPublicKey is the inverse of ParseKeys/assembly: it re-serialises
// one key into transferable-key packet order (primary, direct sigs/revs,
// uids with their sigs, subkeys with their sigs), keeping the order each
// list already has. The packets are returned as-is, not copied.
func FlattenPublicKey(pk *PublicKey) []*Packet {
	if pk == nil {
		return nil
	}
	var out []*Packet
	if pk.Primary != nil {
		out = append(out, pk.Primary)
	}
	out = append(out, pk.Revocations...)
	for _, uid := range pk.UIDs {
		out = append(out, uid.Packet)
		out = append(out, uid.Sigs...)
	}
	for _, sk := range pk.Subkeys {
		out = append(out, sk.Packet)
		out = append(out, sk.Sigs...)
	}
	return out
}

// Clone deep-copies a PublicKey, not following Next (callers clone chains
// element-wise where needed).
func (pk *PublicKey) Clone() *PublicKey {
	if pk == nil {
		return nil
	}
	out := &PublicKey{
		Primary:     pk.Primary.Clone(),
		Revocations: clonePackets(pk.Revocations),
	}
	for _, uid := range pk.UIDs {
		out.UIDs = append(out.UIDs, uid.clone())
	}
	for _, sk := range pk.Subkeys {
		out.Subkeys = append(out.Subkeys, sk.clone())
	}
	return out
}

// KeyID returns the 64-bit key id of the primary packet.
func (pk *PublicKey) KeyID() (uint64, error) {
	if pk == nil || pk.Primary == nil {
		return 0, errors.WithStack(ErrInvalidPkt)
	}
	return KeyIDFromPacket(pk.Primary)
}
