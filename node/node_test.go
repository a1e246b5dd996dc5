package node_test

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shillingchain/node/chain"
	"github.com/shillingchain/node/config"
	"github.com/shillingchain/node/cryptoid"
	"github.com/shillingchain/node/node"
	"github.com/shillingchain/node/wire"
)

func startTestNode(t *testing.T) (addr string, engine *chain.Engine) {
	t.Helper()
	chain.Mining.Store(false)

	priv, err := cryptoid.GenerateKey()
	require.NoError(t, err)

	engine, err = chain.LoadOrCreate(t.TempDir(), priv)
	require.NoError(t, err)
	require.NoError(t, engine.MineGenesisBlock())
	t.Cleanup(func() { engine.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr = ln.Addr().String()

	cfg := &config.Config{
		Nodes:         []string{addr},
		PackageLimits: config.PackageLimits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5},
	}
	n := node.New(engine, cfg, addr)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go n.HandleConnection(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return addr, engine
}

func TestHandlerGetBalance(t *testing.T) {
	addr, engine := startTestNode(t)
	limits := wire.Limits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5}

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.Send(conn, wire.NewPackage(wire.ActionGetBalance, engine.MinerAddress), limits))
	resp, err := wire.Receive(conn, limits, map[wire.Action]bool{wire.ActionGetBalanceSuccess: true})
	require.NoError(t, err)
	require.Equal(t, "100", resp.Data)
}

func TestHandlerGetBlockchainLen(t *testing.T) {
	addr, _ := startTestNode(t)
	limits := wire.Limits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5}

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.Send(conn, wire.NewPackage(wire.ActionGetBlockchainLen, ""), limits))
	resp, err := wire.Receive(conn, limits, map[wire.Action]bool{wire.ActionGetBlockchainLenSuccess: true})
	require.NoError(t, err)
	require.Equal(t, "1", resp.Data)
}

// TestHandlerAddTransactionMinesAndAppends drives two AddTransaction
// requests over the wire until the node becomes minable, and checks that
// the node mines and appends a block (node.mineAndAppend) and that the
// recipient's balance reflects both transactions.
func TestHandlerAddTransactionMinesAndAppends(t *testing.T) {
	addr, engine := startTestNode(t)
	limits := wire.Limits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5}

	recipientKey, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	recipient := cryptoid.DeriveAddress(recipientKey.Public())

	submit := func(amount uint64) {
		lastHash, err := engine.LastBlockHash()
		require.NoError(t, err)
		tx, err := chain.NewTransaction(engine.MinerAddress, recipient, amount, lastHash)
		require.NoError(t, err)
		require.NoError(t, tx.Sign(engine.Miner))
		payload, err := json.Marshal(tx)
		require.NoError(t, err)

		conn, err := net.DialTimeout("tcp", addr, time.Second)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, wire.Send(conn, wire.NewPackage(wire.ActionAddTransaction, string(payload)), limits))
		resp, err := wire.Receive(conn, limits, map[wire.Action]bool{
			wire.ActionAddTransactionSuccess: true,
			wire.ActionAddTransactionFail:    true,
		})
		require.NoError(t, err)
		require.Equal(t, wire.ActionAddTransactionSuccess, resp.Action)
	}

	submit(5)
	submit(6)

	require.Eventually(t, func() bool {
		length, err := engine.Len()
		return err == nil && length == 2
	}, 2*time.Second, 10*time.Millisecond)

	balance, err := engine.GetBalance(recipient)
	require.NoError(t, err)
	require.EqualValues(t, 11, balance)
}

// TestHandlerAddBlockTriggersLagRecovery mirrors scenario 6 of spec §8 over
// real sockets instead of calling chain.Engine.RebuildFromString directly:
// node B is behind node A, receives an AddBlock it cannot append, and must
// dial A back at A's *configured* listen address (node.peerListenAddress)
// to catch up, not at the inbound connection's ephemeral source port.
func TestHandlerAddBlockTriggersLagRecovery(t *testing.T) {
	chain.Mining.Store(false)
	limits := wire.Limits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5}

	privA, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	engineA, err := chain.LoadOrCreate(t.TempDir(), privA)
	require.NoError(t, err)
	require.NoError(t, engineA.MineGenesisBlock())
	t.Cleanup(func() { engineA.Close() })

	recipientKey, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	recipient := cryptoid.DeriveAddress(recipientKey.Public())

	for i := 0; i < 2; i++ {
		lastHash, err := engineA.LastBlockHash()
		require.NoError(t, err)
		tx1, err := chain.NewTransaction(engineA.MinerAddress, recipient, 5, lastHash)
		require.NoError(t, err)
		require.NoError(t, tx1.Sign(engineA.Miner))
		require.NoError(t, engineA.AddTransaction(tx1))
		tx2, err := chain.NewTransaction(engineA.MinerAddress, recipient, 6, lastHash)
		require.NoError(t, err)
		require.NoError(t, tx2.Sign(engineA.Miner))
		require.NoError(t, engineA.AddTransaction(tx2))
		_, err = engineA.MineBlock()
		require.NoError(t, err)
	}
	aLen, err := engineA.Len()
	require.NoError(t, err)
	require.Equal(t, 3, aLen)

	lnA, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addrA := lnA.Addr().String()
	t.Cleanup(func() { lnA.Close() })

	privB, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	engineB, err := chain.LoadOrCreate(t.TempDir(), privB)
	require.NoError(t, err)
	require.NoError(t, engineB.MineGenesisBlock())
	t.Cleanup(func() { engineB.Close() })

	lnB, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addrB := lnB.Addr().String()
	t.Cleanup(func() { lnB.Close() })

	cfgA := &config.Config{Nodes: []string{addrB}, PackageLimits: config.PackageLimits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5}}
	nodeA := node.New(engineA, cfgA, addrA)
	go func() {
		for {
			conn, err := lnA.Accept()
			if err != nil {
				return
			}
			go nodeA.HandleConnection(conn)
		}
	}()

	cfgB := &config.Config{Nodes: []string{addrA}, PackageLimits: config.PackageLimits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5}}
	nodeB := node.New(engineB, cfgB, addrB)
	go func() {
		for {
			conn, err := lnB.Accept()
			if err != nil {
				return
			}
			go nodeB.HandleConnection(conn)
		}
	}()

	blocks, err := engineA.Blocks()
	require.NoError(t, err)
	tip := blocks[len(blocks)-1]
	info := node.BlockAddInfo{Block: tip, BlockchainLen: aLen}
	payload, err := json.Marshal(info)
	require.NoError(t, err)

	conn, err := net.DialTimeout("tcp", addrB, time.Second)
	require.NoError(t, err)
	require.NoError(t, wire.Send(conn, wire.NewPackage(wire.ActionAddBlock, string(payload)), limits))
	conn.Close()

	require.Eventually(t, func() bool {
		length, err := engineB.Len()
		return err == nil && length == aLen
	}, 2*time.Second, 10*time.Millisecond)

	bBlocks, err := engineB.Blocks()
	require.NoError(t, err)
	for i := range blocks {
		hashA, err := blocks[i].BodyHash()
		require.NoError(t, err)
		hashB, err := bBlocks[i].BodyHash()
		require.NoError(t, err)
		require.Equal(t, hashA, hashB)
	}
}
