package client_test

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shillingchain/node/chain"
	"github.com/shillingchain/node/client"
	"github.com/shillingchain/node/config"
	"github.com/shillingchain/node/cryptoid"
	"github.com/shillingchain/node/wire"
)

// fakePeer accepts connections until the test ends; on each it decodes one
// package and replies with a canned response.
func fakePeer(t *testing.T, reply func(wire.Package) wire.Package) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				limits := wire.Limits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5}
				p, err := wire.Receive(conn, limits, nil)
				if err != nil {
					return
				}
				_ = wire.Send(conn, reply(p), limits)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestClientBalanceFansOutAcrossPeers(t *testing.T) {
	peer1 := fakePeer(t, func(wire.Package) wire.Package {
		return wire.NewPackage(wire.ActionGetBalanceSuccess, "10")
	})
	peer2 := fakePeer(t, func(wire.Package) wire.Package {
		return wire.NewPackage(wire.ActionGetBalanceSuccess, "20")
	})

	cfg := &config.Config{
		Nodes:         []string{peer1, peer2},
		PackageLimits: config.PackageLimits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5},
	}
	c := client.New(cfg)

	results := c.Balance("some-address")
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	require.Equal(t, "10", results[0].Data)
	require.Equal(t, "20", results[1].Data)
}

func TestClientTransactionSignsAndBroadcasts(t *testing.T) {
	var captured chain.Transaction
	peer := fakePeer(t, func(p wire.Package) wire.Package {
		if p.Action == wire.ActionGetLastBlockHash {
			return wire.NewPackage(wire.ActionGetLastBlockHashSuccess, "deadbeef")
		}
		_ = json.Unmarshal([]byte(p.Data), &captured)
		return wire.NewPackage(wire.ActionAddTransactionSuccess, "")
	})

	cfg := &config.Config{
		Nodes:         []string{peer},
		PackageLimits: config.PackageLimits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5},
	}
	c := client.New(cfg)

	priv, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	sender := cryptoid.DeriveAddress(priv.Public())

	results := c.Transaction(priv, sender, "recipient-address", 15)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	require.Equal(t, sender, captured.Sender)
	require.Equal(t, "recipient-address", captured.Recipient)
	require.EqualValues(t, 15, captured.Amount)
	require.EqualValues(t, 1, captured.AmountToStorage)
	require.Equal(t, "deadbeef", captured.PreviousBlockHash)
	require.NotEmpty(t, captured.SenderSignature)
}
