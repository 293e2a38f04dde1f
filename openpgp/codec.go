package openpgp

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ReadStream parses a stream of OpenPGP packets. maxKeys bounds how many
// tag-6 (public key) packets may be seen before the reader stops; 0 means
// unbounded. The reader stops right after the maxKeys-th tag-6 packet, so
// the packets that follow it (that key's uids, subkeys and signatures) are
// left unread in r.
//
// Partial-body lengths (new format) and indeterminate lengths (old format)
// are not supported and yield ErrUnsupportedFeature, matching onak's
// original behaviour.
func ReadStream(r io.Reader, maxKeys int) ([]*Packet, error) {
	var packets []*Packet
	keysSeen := 0
	for {
		pkt, err := readPacket(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return packets, err
		}
		packets = append(packets, pkt)
		if pkt.Tag == TagPublicKey {
			keysSeen++
			if maxKeys > 0 && keysSeen >= maxKeys {
				break
			}
		}
	}
	return packets, nil
}

func readPacket(r io.Reader) (*Packet, error) {
	var hdr [1]byte
	_, err := io.ReadFull(r, hdr[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPkt, err.Error())
	}
	b := hdr[0]
	if b&0x80 == 0 {
		return nil, errors.WithStack(ErrInvalidPkt)
	}

	var tag int
	var length int64
	newFormat := b&0x40 != 0

	if newFormat {
		tag = int(b & 0x3F)
		length, err = readNewLength(r)
	} else {
		tag = int((b >> 2) & 0x0F)
		lengthType := b & 0x03
		length, err = readOldLength(r, lengthType)
	}
	if err != nil {
		return nil, err
	}

	data := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, errors.Wrap(ErrInvalidPkt, err.Error())
		}
	}
	return &Packet{Tag: tag, NewFormat: newFormat, Data: data}, nil
}

func readNewLength(r io.Reader) (int64, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.Wrap(ErrInvalidPkt, err.Error())
	}
	l0 := b[0]
	switch {
	case l0 < 192:
		return int64(l0), nil
	case l0 < 224:
		var b2 [1]byte
		if _, err := io.ReadFull(r, b2[:]); err != nil {
			return 0, errors.Wrap(ErrInvalidPkt, err.Error())
		}
		return (int64(l0)-192)<<8 + int64(b2[0]) + 192, nil
	case l0 == 255:
		var b4 [4]byte
		if _, err := io.ReadFull(r, b4[:]); err != nil {
			return 0, errors.Wrap(ErrInvalidPkt, err.Error())
		}
		return int64(binary.BigEndian.Uint32(b4[:])), nil
	default:
		// Partial body length (224 <= l0 < 255): not supported.
		return 0, errors.WithStack(ErrUnsupportedFeature)
	}
}

func readOldLength(r io.Reader, lengthType byte) (int64, error) {
	switch lengthType {
	case 0:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, errors.Wrap(ErrInvalidPkt, err.Error())
		}
		return int64(b[0]), nil
	case 1:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, errors.Wrap(ErrInvalidPkt, err.Error())
		}
		return int64(binary.BigEndian.Uint16(b[:])), nil
	case 2:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, errors.Wrap(ErrInvalidPkt, err.Error())
		}
		return int64(binary.BigEndian.Uint32(b[:])), nil
	default:
		// Indeterminate length: not supported.
		return 0, errors.WithStack(ErrUnsupportedFeature)
	}
}

// WriteStream emits packets in list order, choosing the shortest legal
// length encoding for each packet's format bit. Round-trips with ReadStream,
// modulo re-encoding new-format lengths to their canonical shortest form.
func WriteStream(w io.Writer, packets []*Packet) error {
	for _, pkt := range packets {
		if err := writePacket(w, pkt); err != nil {
			return err
		}
	}
	return nil
}

func writePacket(w io.Writer, pkt *Packet) error {
	var hdr byte = 0x80
	if pkt.NewFormat {
		hdr |= 0x40 | byte(pkt.Tag&0x3F)
		if _, err := w.Write([]byte{hdr}); err != nil {
			return errors.WithStack(err)
		}
		return writeNewLengthAndBody(w, pkt.Data)
	}
	lengthType, encLen := shortestOldLength(len(pkt.Data))
	hdr |= byte(pkt.Tag&0x0F)<<2 | lengthType
	if _, err := w.Write([]byte{hdr}); err != nil {
		return errors.WithStack(err)
	}
	if _, err := w.Write(encLen); err != nil {
		return errors.WithStack(err)
	}
	if _, err := w.Write(pkt.Data); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func shortestOldLength(n int) (byte, []byte) {
	switch {
	case n <= 0xFF:
		return 0, []byte{byte(n)}
	case n <= 0xFFFF:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return 1, b
	default:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		return 2, b
	}
}

func writeNewLengthAndBody(w io.Writer, data []byte) error {
	n := len(data)
	var enc []byte
	switch {
	case n < 192:
		enc = []byte{byte(n)}
	case n < 8384:
		v := n - 192
		enc = []byte{byte(v>>8) + 192, byte(v)}
	default:
		enc = make([]byte, 5)
		enc[0] = 255
		binary.BigEndian.PutUint32(enc[1:], uint32(n))
	}
	if _, err := w.Write(enc); err != nil {
		return errors.WithStack(err)
	}
	if _, err := w.Write(data); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
