package openpgp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeSplitsOnNonAlnum(t *testing.T) {
	words := Tokenize("Alice Example <alice@example.com>")
	_, hasAlice := words["alice"]
	_, hasExample := words["example"]
	_, hasCom := words["com"]
	assert.True(t, hasAlice)
	assert.True(t, hasExample)
	assert.True(t, hasCom)
}

func TestTokenizeDropsShortWords(t *testing.T) {
	words := Tokenize("a b cd")
	_, hasA := words["a"]
	_, hasCd := words["cd"]
	assert.False(t, hasA)
	assert.True(t, hasCd)
}

func TestTokenizeTreatsNonASCIILettersAsBoundaries(t *testing.T) {
	// "café" must split at the non-ASCII "é" (word-forming bytes are only
	// 0-9/A-Z/a-z), yielding "caf" rather than a Unicode
	// "café" token.
	words := Tokenize("café au lait")
	_, hasCafe := words["café"]
	_, hasCaf := words["caf"]
	_, hasLait := words["lait"]
	assert.False(t, hasCafe)
	assert.True(t, hasCaf)
	assert.True(t, hasLait)
}

func TestTokenizeKeyUnionsAllUIDs(t *testing.T) {
	pk := &PublicKey{
		Primary: v4PrimaryPacket(),
		UIDs: []*SignedPacket{
			{Packet: &Packet{Tag: TagUserID, Data: []byte("Alice Smith")}},
			{Packet: &Packet{Tag: TagUserID, Data: []byte("alice@work.example")}},
		},
	}
	words := TokenizeKey(pk)
	_, hasSmith := words["smith"]
	_, hasWork := words["work"]
	assert.True(t, hasSmith)
	assert.True(t, hasWork)
}
