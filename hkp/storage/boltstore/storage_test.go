package boltstore

import (
	"context"
	"path/filepath"
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
	dir := t.TempDir()
	b, err := Open(filepath.Join(dir, "test.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestStoreFetchByFingerprintRoundTrip(t *testing.T) {
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

func TestFetchByIDFindsStoredKey(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	key := testKey(t, 2, "bob@example.com")
	require.NoError(t, b.Store(ctx, key, false, false))

	keyID, err := key.KeyID()
	require.NoError(t, err)

	got, err := b.FetchByID(ctx, keyID, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFetchByTextFindsByWord(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	key := testKey(t, 3, "carol@example.com")
	require.NoError(t, b.Store(ctx, key, false, false))

	got, err := b.FetchByText(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestDeleteRemovesAllIndexes(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	key := testKey(t, 4, "dave@example.com")
	require.NoError(t, b.Store(ctx, key, false, false))
	fp, _ := openpgp.Fingerprint(key.Primary)

	require.NoError(t, b.Delete(ctx, fp, false))

	got, err := b.FetchByFingerprint(ctx, fp, false)
	require.NoError(t, err)
	assert.Empty(t, got)

	byText, err := b.FetchByText(ctx, "dave")
	require.NoError(t, err)
	assert.Empty(t, byText)
}

func TestIterateVisitsEveryKey(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Store(ctx, testKey(t, 5, "one@example.com"), false, false))
	require.NoError(t, b.Store(ctx, testKey(t, 6, "two@example.com"), false, false))

	count, err := b.Iterate(ctx, func(*openpgp.PublicKey) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBeginTxRejectsNesting(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	started, err := b.BeginTx(ctx)
	require.NoError(t, err)
	assert.True(t, started)

	_, err = b.BeginTx(ctx)
	assert.Error(t, err)

	require.NoError(t, b.EndTx(ctx))
}
