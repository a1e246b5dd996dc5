// Package client implements the network-facing half of the CLI surface
// (spec §6): one wire.Package round trip per peer, fanned out across
// every configured node.
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/shillingchain/node/chain"
	"github.com/shillingchain/node/config"
	"github.com/shillingchain/node/cryptoid"
	"github.com/shillingchain/node/wire"
)

// Client talks to every peer in cfg.Nodes independently; callers get one
// PeerResult per peer and decide how to present a failure.
type Client struct {
	cfg *config.Config
}

// New builds a Client over cfg.
func New(cfg *config.Config) *Client {
	return &Client{cfg: cfg}
}

// PeerResult pairs a peer address with either its reply data or an error.
type PeerResult struct {
	Peer string
	Data string
	Err  error
}

func (c *Client) roundTrip(peer string, p wire.Package, accepted map[wire.Action]bool) (wire.Package, error) {
	conn, err := net.DialTimeout("tcp", peer, 5*time.Second)
	if err != nil {
		return wire.Package{}, fmt.Errorf("client: dial %s: %w", peer, err)
	}
	defer conn.Close()

	limits := c.cfg.PackageLimits.AsWireLimits()
	if err := wire.Send(conn, p, limits); err != nil {
		return wire.Package{}, fmt.Errorf("client: send to %s: %w", peer, err)
	}
	resp, err := wire.Receive(conn, limits, accepted)
	if err != nil {
		return wire.Package{}, fmt.Errorf("client: receive from %s: %w", peer, err)
	}
	return resp, nil
}

// Balance requests the balance of address from every peer.
func (c *Client) Balance(address string) []PeerResult {
	p := wire.NewPackage(wire.ActionGetBalance, address)
	accepted := map[wire.Action]bool{wire.ActionGetBalanceSuccess: true}
	return c.fanOut(p, accepted)
}

// BlockchainLen requests the chain length from every peer.
func (c *Client) BlockchainLen() []PeerResult {
	p := wire.NewPackage(wire.ActionGetBlockchainLen, "")
	accepted := map[wire.Action]bool{wire.ActionGetBlockchainLenSuccess: true}
	return c.fanOut(p, accepted)
}

func (c *Client) fanOut(p wire.Package, accepted map[wire.Action]bool) []PeerResult {
	results := make([]PeerResult, 0, len(c.cfg.Nodes))
	for _, peer := range c.cfg.Nodes {
		resp, err := c.roundTrip(peer, p, accepted)
		if err != nil {
			results = append(results, PeerResult{Peer: peer, Err: err})
			continue
		}
		if resp.Action == wire.ActionAddTransactionFail {
			results = append(results, PeerResult{Peer: peer, Err: fmt.Errorf("client: %s rejected the transaction: %s", peer, resp.Data)})
			continue
		}
		results = append(results, PeerResult{Peer: peer, Data: resp.Data})
	}
	return results
}

// Transaction obtains GetLastBlockHash from the first reachable peer,
// signs one transaction from signer to recipient with that hash, and
// broadcasts AddTransaction to every peer — exactly the sequencing of
// spec §6's CLI surface note.
func (c *Client) Transaction(signer cryptoid.PrivateKey, senderAddress, recipient string, amount uint64) []PeerResult {
	var lastHash string
	var hashErr error
	for _, peer := range c.cfg.Nodes {
		resp, err := c.roundTrip(peer, wire.NewPackage(wire.ActionGetLastBlockHash, ""),
			map[wire.Action]bool{wire.ActionGetLastBlockHashSuccess: true})
		if err != nil {
			hashErr = err
			continue
		}
		lastHash = resp.Data
		hashErr = nil
		break
	}
	if hashErr != nil {
		return []PeerResult{{Err: fmt.Errorf("client: could not reach any peer for GetLastBlockHash: %w", hashErr)}}
	}

	tx, err := chain.NewTransaction(senderAddress, recipient, amount, lastHash)
	if err != nil {
		return []PeerResult{{Err: err}}
	}
	if senderAddress != chain.StorageAddress {
		if err := tx.Sign(signer); err != nil {
			return []PeerResult{{Err: fmt.Errorf("client: sign transaction: %w", err)}}
		}
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return []PeerResult{{Err: fmt.Errorf("client: marshal transaction: %w", err)}}
	}
	p := wire.NewPackage(wire.ActionAddTransaction, string(payload))
	accepted := map[wire.Action]bool{
		wire.ActionAddTransactionSuccess: true,
		wire.ActionAddTransactionFail:    true,
	}
	return c.fanOut(p, accepted)
}
