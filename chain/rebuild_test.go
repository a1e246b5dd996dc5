package chain_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shillingchain/node/chain"
	"github.com/shillingchain/node/cryptoid"
)

// TestLagRecovery mirrors scenario 6 of spec §8: node A mines two blocks
// while B only has genesis; B rebuilds from A's full block list and ends
// up with an identical chain.
func TestLagRecovery(t *testing.T) {
	chain.Mining.Store(false)

	priv, err := cryptoid.GenerateKey()
	require.NoError(t, err)

	dirA := filepath.Join(t.TempDir(), "a")
	a, err := chain.LoadOrCreate(dirA, priv)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.MineGenesisBlock())

	recipientKey, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	recipient := cryptoid.DeriveAddress(recipientKey.Public())

	for i := 0; i < 2; i++ {
		lastHash, err := a.LastBlockHash()
		require.NoError(t, err)

		tx1, err := chain.NewTransaction(a.MinerAddress, recipient, 5, lastHash)
		require.NoError(t, err)
		require.NoError(t, tx1.Sign(a.Miner))
		require.NoError(t, a.AddTransaction(tx1))

		tx2, err := chain.NewTransaction(a.MinerAddress, recipient, 6, lastHash)
		require.NoError(t, err)
		require.NoError(t, tx2.Sign(a.Miner))
		require.NoError(t, a.AddTransaction(tx2))

		_, err = a.MineBlock()
		require.NoError(t, err)
	}

	aLen, err := a.Len()
	require.NoError(t, err)
	require.Equal(t, 3, aLen) // genesis + 2 mined blocks

	dirB := filepath.Join(t.TempDir(), "b")
	b, err := chain.LoadOrCreate(dirB, priv)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.MineGenesisBlock())

	blocks, err := a.Blocks()
	require.NoError(t, err)
	payload, err := json.Marshal(blocks)
	require.NoError(t, err)

	require.NoError(t, b.RebuildFromString(string(payload)))

	bLen, err := b.Len()
	require.NoError(t, err)
	require.Equal(t, aLen, bLen)

	aBlocks, err := a.Blocks()
	require.NoError(t, err)
	bBlocks, err := b.Blocks()
	require.NoError(t, err)
	for i := range aBlocks {
		hashA, err := aBlocks[i].BodyHash()
		require.NoError(t, err)
		hashB, err := bBlocks[i].BodyHash()
		require.NoError(t, err)
		require.Equal(t, hashA, hashB)
	}
}
