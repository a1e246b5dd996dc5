// Package node implements the per-connection dispatcher and the TCP
// accept loop that together form one network participant (spec §4.8,
// §4.9): admitting transactions, mining, broadcasting new blocks, and
// recovering a lagging chain by wholesale transfer from a peer.
package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/shillingchain/node/chain"
	"github.com/shillingchain/node/config"
	"github.com/shillingchain/node/cryptoid"
	"github.com/shillingchain/node/wire"
)

// BlockAddInfo is the AddBlock wire payload: the new block plus the
// sender's chain length, so the receiver can detect it is lagging.
type BlockAddInfo struct {
	Block         chain.Block `json:"block"`
	BlockchainLen int         `json:"blockchain_len"`
}

// Node owns the shared engine behind a readers-writer lock and the static
// configuration; it is the process-wide singleton described in spec §4.9,
// though nothing stops a test from constructing more than one.
type Node struct {
	mu          sync.RWMutex
	engine      *chain.Engine
	cfg         *config.Config
	selfAddress string
}

// New wraps an already-loaded engine for a node listening at selfAddress.
func New(engine *chain.Engine, cfg *config.Config, selfAddress string) *Node {
	return &Node{engine: engine, cfg: cfg, selfAddress: selfAddress}
}

// ListenAndServe binds selfAddress and hands every accepted connection to
// its own goroutine, exactly the "fresh worker thread per connection"
// model of spec §5 (goroutines standing in for OS threads).
func (n *Node) ListenAndServe() error {
	ln, err := net.Listen("tcp", n.selfAddress)
	if err != nil {
		return fmt.Errorf("node: listen on %s: %w", n.selfAddress, err)
	}
	defer ln.Close()

	zap.L().Sugar().Infow("node listening", "address", n.selfAddress)
	for {
		conn, err := ln.Accept()
		if err != nil {
			zap.L().Sugar().Errorw("accept failed", "error", err)
			continue
		}
		go n.HandleConnection(conn)
	}
}

// HandleConnection runs the per-connection dispatch of spec §4.8: receive
// one package, dispatch by action, reply if one is defined, and close.
// Exported so a custom listener (or a test harness) can reuse it directly.
func (n *Node) HandleConnection(conn net.Conn) {
	defer conn.Close()

	limits := n.cfg.PackageLimits.AsWireLimits()
	p, err := wire.Receive(conn, limits, nil)
	if err != nil {
		zap.L().Sugar().Debugw("receive failed, closing connection", "error", err)
		return
	}

	switch p.Action {
	case wire.ActionAddBlock:
		n.handleAddBlock(conn, p)
	case wire.ActionAddTransaction:
		n.handleAddTransaction(conn, p, limits)
	case wire.ActionGetBalance:
		n.handleGetBalance(conn, p, limits)
	case wire.ActionGetBlockchainLen:
		n.handleGetBlockchainLen(conn, limits)
	case wire.ActionGetLastBlockHash:
		n.handleGetLastBlockHash(conn, limits)
	case wire.ActionGetBlocks:
		n.handleGetBlocks(conn, limits)
	default:
		zap.L().Sugar().Warnw("unhandled action", "action", p.Action)
	}
}

// peerListenAddress maps conn's remote host (not its ephemeral source
// port, which never matches a peer's advertised listening port) to that
// peer's configured host:port, so a callback can dial the peer back on
// its actual listening address rather than conn.RemoteAddr().
func (n *Node) peerListenAddress(conn net.Conn) (string, bool) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return "", false
	}
	for _, peer := range n.cfg.Nodes {
		peerHost, _, err := net.SplitHostPort(peer)
		if err == nil && peerHost == host {
			return peer, true
		}
		if strings.TrimSpace(peer) == host {
			return peer, true
		}
	}
	return "", false
}

// peerAuthorized reports whether conn's remote host is one of the
// configured peers.
func (n *Node) peerAuthorized(conn net.Conn) bool {
	_, ok := n.peerListenAddress(conn)
	return ok
}

func (n *Node) handleAddBlock(conn net.Conn, p wire.Package) {
	peerAddr, authorized := n.peerListenAddress(conn)
	if !authorized {
		zap.L().Sugar().Warnw("rejected AddBlock from unauthorized peer", "remote", conn.RemoteAddr())
		return
	}

	var info BlockAddInfo
	if err := json.Unmarshal([]byte(p.Data), &info); err != nil {
		zap.L().Sugar().Warnw("bad BlockAddInfo payload", "error", err)
		return
	}

	n.mu.Lock()
	localLen, lenErr := n.engine.Len()
	err := n.engine.AddBlock(info.Block, false)
	n.mu.Unlock()

	if err == nil || lenErr != nil {
		return
	}

	if info.BlockchainLen > localLen {
		zap.L().Sugar().Infow("behind a peer, starting lag recovery", "peer", peerAddr)
		n.recoverFrom(peerAddr)
	}
}

func (n *Node) handleAddTransaction(conn net.Conn, p wire.Package, limits wire.Limits) {
	var tx chain.Transaction
	if err := json.Unmarshal([]byte(p.Data), &tx); err != nil {
		_ = wire.Send(conn, wire.NewPackage(wire.ActionAddTransactionFail, "bad transaction JSON"), limits)
		return
	}

	n.mu.Lock()
	err := n.engine.AddTransaction(tx)
	var unmined *chain.Block
	if err == nil && n.engine.Minable() {
		unmined, err = n.engine.PrepareBlock()
	}
	miner := n.engine.Miner
	n.mu.Unlock()

	if err != nil {
		_ = wire.Send(conn, wire.NewPackage(wire.ActionAddTransactionFail, err.Error()), limits)
		return
	}
	_ = wire.Send(conn, wire.NewPackage(wire.ActionAddTransactionSuccess, ""), limits)

	if unmined == nil {
		return
	}
	n.mineAndAppend(unmined, miner)
}

// mineAndAppend runs PoW and signing on unmined without holding the
// writer lock (spec §5's mining isolation: the lock is reacquired only to
// call AddBlock), then broadcasts the result to every peer. A competing
// block arriving mid-search clears the Mining flag and this attempt fails
// with ErrMiningStopped, which is an expected outcome, not a fault.
func (n *Node) mineAndAppend(unmined *chain.Block, miner cryptoid.PrivateKey) {
	chain.Mining.Store(true)
	err := unmined.Mine()
	chain.Mining.Store(false)
	if err != nil {
		if !errors.Is(err, chain.ErrMiningStopped) {
			zap.L().Sugar().Errorw("mining failed", "error", err)
		}
		return
	}
	if err := unmined.Sign(miner); err != nil {
		zap.L().Sugar().Errorw("sign mined block failed", "error", err)
		return
	}

	n.mu.Lock()
	err = n.engine.AddBlock(*unmined, false)
	n.mu.Unlock()
	if err != nil {
		zap.L().Sugar().Errorw("append mined block failed", "error", err)
		return
	}

	n.broadcastBlock(*unmined)
}

func (n *Node) handleGetBalance(conn net.Conn, p wire.Package, limits wire.Limits) {
	n.mu.RLock()
	balance, err := n.engine.GetBalance(p.Data)
	n.mu.RUnlock()
	if err != nil {
		zap.L().Sugar().Errorw("get_balance failed", "error", err)
		return
	}
	_ = wire.Send(conn, wire.NewPackage(wire.ActionGetBalanceSuccess, fmt.Sprintf("%d", balance)), limits)
}

func (n *Node) handleGetBlockchainLen(conn net.Conn, limits wire.Limits) {
	n.mu.RLock()
	length, err := n.engine.Len()
	n.mu.RUnlock()
	if err != nil {
		zap.L().Sugar().Errorw("get_blockchain_len failed", "error", err)
		return
	}
	_ = wire.Send(conn, wire.NewPackage(wire.ActionGetBlockchainLenSuccess, fmt.Sprintf("%d", length)), limits)
}

func (n *Node) handleGetLastBlockHash(conn net.Conn, limits wire.Limits) {
	n.mu.RLock()
	hash, err := n.engine.LastBlockHash()
	n.mu.RUnlock()
	if err != nil {
		zap.L().Sugar().Errorw("get_last_block_hash failed", "error", err)
		return
	}
	_ = wire.Send(conn, wire.NewPackage(wire.ActionGetLastBlockHashSuccess, hash), limits)
}

func (n *Node) handleGetBlocks(conn net.Conn, limits wire.Limits) {
	n.mu.RLock()
	blocks, err := n.engine.Blocks()
	n.mu.RUnlock()
	if err != nil {
		zap.L().Sugar().Errorw("get_blocks failed", "error", err)
		return
	}
	payload, err := json.Marshal(blocks)
	if err != nil {
		zap.L().Sugar().Errorw("marshal blocks failed", "error", err)
		return
	}
	_ = wire.Send(conn, wire.NewPackage(wire.ActionGetBlocksSuccess, string(payload)), limits)
}

// broadcastBlock sends AddBlock to every configured peer. Failures to
// reach a peer are logged and skipped, never fatal to the caller.
func (n *Node) broadcastBlock(block chain.Block) {
	n.mu.RLock()
	length, err := n.engine.Len()
	n.mu.RUnlock()
	if err != nil {
		zap.L().Sugar().Errorw("broadcast: could not read chain length", "error", err)
		return
	}

	info := BlockAddInfo{Block: block, BlockchainLen: length}
	payload, err := json.Marshal(info)
	if err != nil {
		zap.L().Sugar().Errorw("broadcast: marshal BlockAddInfo failed", "error", err)
		return
	}
	p := wire.NewPackage(wire.ActionAddBlock, string(payload))
	limits := n.cfg.PackageLimits.AsWireLimits()

	for _, peer := range n.cfg.Nodes {
		conn, err := net.Dial("tcp", peer)
		if err != nil {
			zap.L().Sugar().Warnw("broadcast: could not reach peer", "peer", peer, "error", err)
			continue
		}
		if err := wire.Send(conn, p, limits); err != nil {
			zap.L().Sugar().Warnw("broadcast: send failed", "peer", peer, "error", err)
		}
		conn.Close()
	}
}

// recoverFrom pulls the full block list from peerAddress and rebuilds
// this node's chain from it, per spec §4.8's lag-recovery path.
func (n *Node) recoverFrom(peerAddress string) {
	limits := n.cfg.PackageLimits.AsWireLimits()

	conn, err := net.Dial("tcp", peerAddress)
	if err != nil {
		zap.L().Sugar().Warnw("lag recovery: could not reach peer", "peer", peerAddress, "error", err)
		return
	}
	defer conn.Close()

	if err := wire.Send(conn, wire.NewPackage(wire.ActionGetBlocks, ""), limits); err != nil {
		zap.L().Sugar().Warnw("lag recovery: request failed", "error", err)
		return
	}
	resp, err := wire.Receive(conn, limits, map[wire.Action]bool{wire.ActionGetBlocksSuccess: true})
	if err != nil {
		zap.L().Sugar().Warnw("lag recovery: receive failed", "error", err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	chain.Mining.Store(false)
	if err := n.engine.RebuildFromString(resp.Data); err != nil {
		zap.L().Sugar().Errorw("lag recovery: rebuild failed", "error", err)
	}
}
