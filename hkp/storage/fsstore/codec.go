package fsstore

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/hkpd/keyserver/openpgp"
)

// encodeKey/decodeKey store a key on disk as its plain packet stream
// (each packet keeps its own old/new header format), the same bytes a
// client would upload — so a
// fsstore key file can be served back out verbatim as an HKP /pks/lookup
// response without re-encoding.
func encodeKey(pk *openpgp.PublicKey) []byte {
	var buf bytes.Buffer
	openpgp.WriteStream(&buf, openpgp.FlattenPublicKey(pk))
	return buf.Bytes()
}

func decodeKey(data []byte) (*openpgp.PublicKey, error) {
	pkts, err := openpgp.ReadStream(bytes.NewReader(data), 0)
	if err != nil {
		return nil, err
	}
	keys, err := openpgp.ParseKeys(pkts)
	if err != nil {
		return nil, err
	}
	if len(keys) != 1 {
		return nil, errors.Errorf("fsstore: expected exactly one key, got %d", len(keys))
	}
	return keys[0], nil
}
