package fsstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkpd/keyserver/openpgp"
)

func testKey(t *testing.T, salt byte, uidText string) *openpgp.PublicKey {
	t.Helper()
	primary := &openpgp.Packet{Tag: openpgp.TagPublicKey, NewFormat: true, Data: []byte{4, 0, 0, 0, salt, 1, 0, 1, salt}}
	uid := &openpgp.Packet{Tag: openpgp.TagUserID, NewFormat: true, Data: []byte(uidText)}
	keys, err := openpgp.ParseKeys([]*openpgp.Packet{primary, uid})
	require.NoError(t, err)
	return keys[0]
}

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestFsStoreFetchByFingerprintRoundTrip(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	key := testKey(t, 1, "alice@example.com")
	require.NoError(t, b.Store(ctx, key, false, false))

	fp, err := openpgp.Fingerprint(key.Primary)
	require.NoError(t, err)

	got, err := b.FetchByFingerprint(ctx, fp, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Primary.Equal(key.Primary))
}

func TestFsStoreFetchByTextFindsByWord(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	key := testKey(t, 2, "carol@example.com")
	require.NoError(t, b.Store(ctx, key, false, false))

	got, err := b.FetchByText(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFsStoreDeleteRemovesIndexes(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	key := testKey(t, 3, "dave@example.com")
	require.NoError(t, b.Store(ctx, key, false, false))
	fp, _ := openpgp.Fingerprint(key.Primary)

	require.NoError(t, b.Delete(ctx, fp, false))

	got, err := b.FetchByFingerprint(ctx, fp, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFsStoreIterateVisitsEveryKey(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Store(ctx, testKey(t, 4, "one@example.com"), false, false))
	require.NoError(t, b.Store(ctx, testKey(t, 5, "two@example.com"), false, false))

	count, err := b.Iterate(ctx, func(*openpgp.PublicKey) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
