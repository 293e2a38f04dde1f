package openpgp

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	armorHeaderPublic = "-----BEGIN PGP PUBLIC KEY BLOCK-----"
	armorFooterPublic = "-----END PGP PUBLIC KEY BLOCK-----"

	// armorVersion names this implementation in the armor Version: header,
	// the way onak's armor.c emits "Version: onak <ONAK_VERSION>".
	armorVersion = "keyserverd 1.0"

	// armorWidth is the base64 line wrap width, matching onak's
	// armor.c ARMOR_WIDTH.
	armorWidth = 64

	crc24Init = 0xB704CE
	crc24Poly = 0x1864CFB
	crc24Mask = 0xFFFFFF
)

// CRC24 computes the OpenPGP ASCII-armor checksum (RFC 4880 §6.1).
func CRC24(data []byte) uint32 {
	crc := uint32(crc24Init)
	for _, b := range data {
		crc ^= uint32(b) << 16
		for i := 0; i < 8; i++ {
			crc <<= 1
			if crc&0x1000000 != 0 {
				crc ^= crc24Poly
			}
		}
	}
	return crc & crc24Mask
}

// Armor wraps data in an ASCII-armored public key block with a Version
// header, a trailing CRC-24 checksum line, and a 64-column base64 body.
func Armor(data []byte) string {
	var sb strings.Builder
	sb.WriteString(armorHeaderPublic)
	sb.WriteByte('\n')
	sb.WriteString("Version: ")
	sb.WriteString(armorVersion)
	sb.WriteString("\n\n")

	b64 := base64.StdEncoding.EncodeToString(data)
	for len(b64) > 0 {
		n := armorWidth
		if n > len(b64) {
			n = len(b64)
		}
		sb.WriteString(b64[:n])
		sb.WriteByte('\n')
		b64 = b64[n:]
	}

	crc := CRC24(data)
	crcBytes := []byte{byte(crc >> 16), byte(crc >> 8), byte(crc)}
	sb.WriteByte('=')
	sb.WriteString(base64.StdEncoding.EncodeToString(crcBytes))
	sb.WriteByte('\n')
	sb.WriteString(armorFooterPublic)
	sb.WriteByte('\n')
	return sb.String()
}

// Dearmor reverses Armor. A CRC mismatch is reported through crcOK=false
// and does not itself cause Dearmor to fail, same as onak's forgiving
// armor.c; callers decide whether to log or reject (see ArmorError).
func Dearmor(r io.Reader) (data []byte, crcOK bool, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	inHeader := false
	var b64 strings.Builder
	var crcLine string
	sawFooter := false

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case !inHeader:
			if strings.HasPrefix(line, "-----BEGIN PGP ") {
				inHeader = true
			}
			continue
		case line == "":
			continue
		case strings.HasPrefix(line, "-----END PGP "):
			sawFooter = true
		case strings.HasPrefix(line, "="):
			crcLine = line[1:]
		case strings.Contains(line, ":"):
			// Armor header line (Version:, Comment:, ...); skip.
			continue
		default:
			if sawFooter {
				continue
			}
			b64.WriteString(line)
		}
		if sawFooter {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, errors.Wrap(ErrInvalidPkt, err.Error())
	}
	if !inHeader || !sawFooter {
		return nil, false, errors.WithStack(ErrInvalidPkt)
	}

	data, err = base64.StdEncoding.DecodeString(b64.String())
	if err != nil {
		return nil, false, errors.Wrap(ErrInvalidPkt, err.Error())
	}

	crcOK = true
	if crcLine != "" {
		wantBytes, derr := base64.StdEncoding.DecodeString(crcLine)
		if derr != nil || len(wantBytes) != 3 {
			crcOK = false
		} else {
			want := uint32(wantBytes[0])<<16 | uint32(wantBytes[1])<<8 | uint32(wantBytes[2])
			crcOK = want == CRC24(data)
		}
	}
	return data, crcOK, nil
}

// ArmorError renders a mismatched-CRC condition for logging by callers
// that want to surface it (Dearmor itself never returns an error for this).
func ArmorError(crcOK bool) error {
	if crcOK {
		return nil
	}
	return fmt.Errorf("armor: CRC24 checksum mismatch")
}
