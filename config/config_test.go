package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHasSaneValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 100, cfg.MaxKeys)
	assert.Equal(t, "btree", cfg.DBBackend)
}

func TestLoadFillsInUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
thissite: keys.example.com
backends_dir: /var/lib/keyserver/db
db_backend: btree
backends:
  - name: btree
    type: btree
    location: /var/lib/keyserver/db/keys.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.MaxKeys) // not set in the file, default kept
	assert.Equal(t, "keys.example.com", cfg.ThisSite)
	assert.Equal(t, "btree", cfg.DBBackend)
	require.Len(t, cfg.Backends, 1)
	assert.Equal(t, "btree", cfg.Backends[0].Name)
}

func TestLoadRejectsNegativeMaxKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxkeys: -5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MaxKeys)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFindBackend(t *testing.T) {
	cfg := Config{Backends: []Backend{
		{Name: "btree", Type: "btree"},
		{Name: "fs", Type: "fs"},
	}}

	b, ok := cfg.FindBackend("fs")
	require.True(t, ok)
	assert.Equal(t, "fs", b.Type)

	_, ok = cfg.FindBackend("missing")
	assert.False(t, ok)
}
