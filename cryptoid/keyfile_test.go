package cryptoid_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shillingchain/node/cryptoid"
)

func TestLoadOrCreateKeyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "private-key")

	created, err := cryptoid.LoadOrCreateKey(path)
	require.NoError(t, err)

	loaded, err := cryptoid.LoadOrCreateKey(path)
	require.NoError(t, err)

	require.Equal(t, cryptoid.DeriveAddress(created.Public()), cryptoid.DeriveAddress(loaded.Public()))
}
