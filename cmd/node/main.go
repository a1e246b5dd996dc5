// Command node runs one network participant: it loads its identity and
// chain from resources/, mines the genesis block on a fresh chain, then
// accepts peer and client connections until killed.
package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"

	"github.com/vrecan/death/v3"
	"go.uber.org/zap"

	"github.com/shillingchain/node/chain"
	"github.com/shillingchain/node/config"
	"github.com/shillingchain/node/cryptoid"
	"github.com/shillingchain/node/node"
)

const resourcesDir = "resources"

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Enter the node address.")
		os.Exit(1)
	}
	address := os.Args[1]
	if _, _, err := net.SplitHostPort(address); err != nil {
		fmt.Fprintln(os.Stderr, "Invalid address.")
		os.Exit(1)
	}

	if err := run(address); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(address string) error {
	cfg, err := config.Load(filepath.Join(resourcesDir, "config.json"), address)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	_, syncLog, err := config.SetupLogging(cfg.Tracing.Node)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer syncLog()

	miner, err := cryptoid.LoadOrCreateKey(filepath.Join(resourcesDir, "private-key"))
	if err != nil {
		return fmt.Errorf("load or create keypair: %w", err)
	}

	engine, err := chain.LoadOrCreate(filepath.Join(resourcesDir, "db"), miner)
	if err != nil {
		return fmt.Errorf("load or create chain: %w", err)
	}

	count, err := engine.Len()
	if err != nil {
		return fmt.Errorf("read chain length: %w", err)
	}
	if count == 0 {
		zap.L().Sugar().Infow("chain is empty, mining genesis block")
		if err := engine.MineGenesisBlock(); err != nil {
			return fmt.Errorf("mine genesis block: %w", err)
		}
	}

	d := death.NewDeath(syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	go d.WaitForDeathWithFunc(func() {
		zap.L().Sugar().Infow("shutting down")
		_ = engine.Close()
		os.Exit(0)
	})

	n := node.New(engine, cfg, address)
	zap.L().Sugar().Infow("listening", "address", address)
	return n.ListenAndServe()
}
