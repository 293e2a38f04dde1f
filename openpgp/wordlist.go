package openpgp

import "strings"

// minWordLen matches onak's word-index floor: single letters aren't
// indexed, they'd match everything.
const minWordLen = 2

// isWordByte reports whether b is one of onak's word-forming bytes
// (0-9/A-Z/a-z). The check is ASCII-only and byte-oriented, not
// Unicode-aware: a non-ASCII letter is a word boundary, same as onak's C
// tokenizer which has no concept of a Unicode codepoint.
func isWordByte(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z'
}

// Tokenize splits s (typically a UID's name/comment/email) into the set of
// lowercased words used to populate the full-text word index. Splitting is
// on any byte outside 0-9/A-Z/a-z, so "user@example.com"
// yields {user, example, com}; bytes belonging to multi-byte UTF-8 sequences
// are never word-forming and always act as separators.
func Tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	var word []byte
	flush := func() {
		if len(word) >= minWordLen {
			out[strings.ToLower(string(word))] = struct{}{}
		}
		word = word[:0]
	}
	for i := 0; i < len(s); i++ {
		if b := s[i]; isWordByte(b) {
			word = append(word, b)
		} else {
			flush()
		}
	}
	flush()
	return out
}

// TokenizeKey returns the union of words across all of a key's UIDs,
// the set actually stored against the key in the word index.
func TokenizeKey(pk *PublicKey) map[string]struct{} {
	out := make(map[string]struct{})
	for _, uid := range pk.UIDs {
		if uid.Packet.Tag != TagUserID {
			continue
		}
		for w := range Tokenize(string(uid.Packet.Data)) {
			out[w] = struct{}{}
		}
	}
	return out
}
