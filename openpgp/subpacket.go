package openpgp

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// Signature subpacket types we decode (RFC 4880 §5.2.3.1).
const (
	subpktCreationTime    = 2
	subpktIssuerKeyID     = 16
	subpktRevocationReason = 29
)

// SigInfo is the decoded subset of a signature packet's fields this
// package needs: who issued it, when, and (for revocations) why.
type SigInfo struct {
	Version  byte
	SigType  byte
	Created  time.Time
	IssuerID uint64
	HasIssuer bool

	IsRevocation  bool
	RevocationReason byte
	RevocationText   string
}

// DecodeSignature extracts SigInfo from a tag-2 packet, handling both the
// fixed-field v3 layout and the subpacket-based v4/v5 layout. v4 and v5
// signatures share subpacket framing; only the
// trailer differs, which we don't need here.
func DecodeSignature(pkt *Packet) (*SigInfo, error) {
	if pkt == nil || pkt.Tag != TagSignature || len(pkt.Data) < 1 {
		return nil, errors.WithStack(ErrInvalidPkt)
	}
	data := pkt.Data
	ver := data[0]
	info := &SigInfo{Version: ver}

	switch ver {
	case 2, 3:
		return decodeSigV3(data, info)
	case 4, 5:
		return decodeSigV4(data, info)
	default:
		return nil, Errorf(KindUnknownVer, "unknown signature version %d", ver)
	}
}

func decodeSigV3(data []byte, info *SigInfo) (*SigInfo, error) {
	// ver(1) hashedlen(1)=5 sigtype(1) created(4) keyid(8) pkalgo(1) hashalgo(1) ...
	if len(data) < 17 {
		return nil, errors.WithStack(ErrInvalidPkt)
	}
	info.SigType = data[2]
	info.Created = time.Unix(int64(binary.BigEndian.Uint32(data[3:7])), 0).UTC()
	info.IssuerID = binary.BigEndian.Uint64(data[7:15])
	info.HasIssuer = true
	if isRevocationSigType(info.SigType) {
		info.IsRevocation = true
	}
	return info, nil
}

func decodeSigV4(data []byte, info *SigInfo) (*SigInfo, error) {
	// ver(1) sigtype(1) pkalgo(1) hashalgo(1) hashedlen(2) hashed[...] unhashedlen(2) unhashed[...]
	if len(data) < 6 {
		return nil, errors.WithStack(ErrInvalidPkt)
	}
	info.SigType = data[1]
	if isRevocationSigType(info.SigType) {
		info.IsRevocation = true
	}

	off := 4
	hashedLen := int(binary.BigEndian.Uint16(data[off:]))
	off += 2
	if off+hashedLen > len(data) {
		return nil, errors.WithStack(ErrInvalidPkt)
	}
	if err := walkSubpackets(data[off:off+hashedLen], info); err != nil {
		return nil, err
	}
	off += hashedLen

	if off+2 > len(data) {
		return nil, errors.WithStack(ErrInvalidPkt)
	}
	unhashedLen := int(binary.BigEndian.Uint16(data[off:]))
	off += 2
	if off+unhashedLen > len(data) {
		return nil, errors.WithStack(ErrInvalidPkt)
	}
	if err := walkSubpackets(data[off:off+unhashedLen], info); err != nil {
		return nil, err
	}
	return info, nil
}

func isRevocationSigType(t byte) bool {
	switch t {
	case 0x20, 0x28, 0x30:
		return true
	default:
		return false
	}
}

// walkSubpackets decodes a subpacket area using the new-format-style
// length prefix each subpacket carries, filling in the fields of info it
// recognises and skipping the rest.
func walkSubpackets(area []byte, info *SigInfo) error {
	for len(area) > 0 {
		length, lenSize, err := subpacketLength(area)
		if err != nil {
			return err
		}
		area = area[lenSize:]
		if length == 0 || length > len(area) {
			return errors.WithStack(ErrInvalidPkt)
		}
		// length includes the type byte.
		body := area[:length]
		typ := body[0] &^ 0x80 // strip critical bit
		val := body[1:]

		switch typ {
		case subpktCreationTime:
			if len(val) >= 4 {
				info.Created = time.Unix(int64(binary.BigEndian.Uint32(val)), 0).UTC()
			}
		case subpktIssuerKeyID:
			if len(val) >= 8 {
				info.IssuerID = binary.BigEndian.Uint64(val)
				info.HasIssuer = true
			}
		case subpktRevocationReason:
			if len(val) >= 1 {
				info.RevocationReason = val[0]
				info.RevocationText = string(val[1:])
			}
		}
		area = area[length:]
	}
	return nil
}

func subpacketLength(area []byte) (length, lenSize int, err error) {
	if len(area) < 1 {
		return 0, 0, errors.WithStack(ErrInvalidPkt)
	}
	l0 := area[0]
	switch {
	case l0 < 192:
		return int(l0), 1, nil
	case l0 < 255:
		if len(area) < 2 {
			return 0, 0, errors.WithStack(ErrInvalidPkt)
		}
		return (int(l0)-192)<<8 + int(area[1]) + 192, 2, nil
	default:
		if len(area) < 5 {
			return 0, 0, errors.WithStack(ErrInvalidPkt)
		}
		return int(binary.BigEndian.Uint32(area[1:5])), 5, nil
	}
}
