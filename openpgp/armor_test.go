package openpgp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC24KnownVector(t *testing.T) {
	// The empty input's CRC-24 is just the init value.
	assert.Equal(t, uint32(0xB704CE), CRC24(nil))
}

func TestArmorDearmorRoundTrip(t *testing.T) {
	data := []byte("some arbitrary key material, long enough to wrap across more than one 64-column base64 line when armored, padding padding padding padding")

	armored := Armor(data)
	assert.True(t, strings.HasPrefix(armored, armorHeaderPublic))
	assert.True(t, strings.Contains(armored, armorFooterPublic))

	got, crcOK, err := Dearmor(strings.NewReader(armored))
	require.NoError(t, err)
	assert.True(t, crcOK)
	assert.Equal(t, data, got)
}

func TestArmorEmitsVersionHeader(t *testing.T) {
	armored := Armor([]byte("hello world"))
	assert.Contains(t, armored, "Version: "+armorVersion+"\n")
}

func TestArmorWrapsBase64At64Columns(t *testing.T) {
	data := []byte(strings.Repeat("x", 100))
	armored := Armor(data)
	for _, line := range strings.Split(armored, "\n") {
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "=") || strings.Contains(line, ":") || line == "" {
			continue
		}
		assert.LessOrEqual(t, len(line), armorWidth)
	}
}

func TestDearmorDetectsCRCMismatch(t *testing.T) {
	data := []byte("hello world")
	armored := Armor(data)
	// Corrupt a byte in the CRC line specifically.
	lines := strings.Split(armored, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "=") {
			lines[i] = "=XXXX"
		}
	}
	corrupted := strings.Join(lines, "\n")

	got, crcOK, err := Dearmor(strings.NewReader(corrupted))
	require.NoError(t, err) // mismatch is non-fatal
	assert.False(t, crcOK)
	assert.Equal(t, data, got)
}

func TestDearmorRejectsMissingFooter(t *testing.T) {
	_, _, err := Dearmor(strings.NewReader(armorHeaderPublic + "\n\nQUJD\n"))
	assert.Error(t, err)
}
