// Package main implements the client CLI dispatcher of spec §6: a thin
// cobra front-end over the client package's network calls. Each network
// subcommand fans a request out to every configured peer independently
// and prints one line per peer; "user address" only prints the local
// address.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shillingchain/node/client"
	"github.com/shillingchain/node/config"
	"github.com/shillingchain/node/cryptoid"
)

const resourcesDir = "resources"

// printResults renders one "peer: message" line per client.PeerResult,
// mirroring the original client's nprintln! helper.
func printResults(results []client.PeerResult, message func(client.PeerResult) string) {
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("%s: %v\n", r.Peer, r.Err)
			continue
		}
		fmt.Printf("%s: %s\n", r.Peer, message(r))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "client",
		Short:         "Query balances and chain state, and submit transactions to the network",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newUserCmd(), newBlockchainCmd())
	return root
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Operations on this node's own identity"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "address",
			Short: "Print this client's address",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, address, err := loadIdentity()
				if err != nil {
					return err
				}
				fmt.Println(address)
				return nil
			},
		},
		&cobra.Command{
			Use:   "balance",
			Short: "Print this client's balance on every peer",
			RunE: func(cmd *cobra.Command, args []string) error {
				c, _, address, err := loadClient()
				if err != nil {
					return err
				}
				printResults(c.Balance(address), func(r client.PeerResult) string {
					return "Balance: " + r.Data
				})
				return nil
			},
		},
	)
	return cmd
}

func newBlockchainCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "blockchain", Short: "Operations against the replicated chain"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "len",
			Short: "Print the chain length on every peer",
			RunE: func(cmd *cobra.Command, args []string) error {
				c, _, _, err := loadClient()
				if err != nil {
					return err
				}
				printResults(c.BlockchainLen(), func(r client.PeerResult) string {
					return "Blockchain length: " + r.Data
				})
				return nil
			},
		},
		&cobra.Command{
			Use:   "balance <address>",
			Short: "Print an address's balance on every peer",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, _, _, err := loadClient()
				if err != nil {
					return err
				}
				printResults(c.Balance(args[0]), func(r client.PeerResult) string {
					return "Balance: " + r.Data
				})
				return nil
			},
		},
		&cobra.Command{
			Use:   "transaction <address> <amount>",
			Short: "Sign and submit a transaction to every peer",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := strconv.ParseUint(args[1], 10, 64)
				if err != nil || amount == 0 {
					return fmt.Errorf("amount must be a positive integer")
				}
				c, signer, address, err := loadClient()
				if err != nil {
					return err
				}
				printResults(c.Transaction(signer, address, args[0], amount), func(r client.PeerResult) string {
					return "The transaction was successfully made."
				})
				return nil
			},
		},
	)
	return cmd
}

func loadIdentity() (cryptoid.PrivateKey, string, error) {
	signer, err := cryptoid.LoadOrCreateKey(filepath.Join(resourcesDir, "private-key"))
	if err != nil {
		return cryptoid.PrivateKey{}, "", fmt.Errorf("load or create keypair: %w", err)
	}
	return signer, cryptoid.DeriveAddress(signer.Public()), nil
}

func loadClient() (*client.Client, cryptoid.PrivateKey, string, error) {
	signer, address, err := loadIdentity()
	if err != nil {
		return nil, cryptoid.PrivateKey{}, "", err
	}
	cfg, err := config.Load(filepath.Join(resourcesDir, "config.json"), "")
	if err != nil {
		return nil, cryptoid.PrivateKey{}, "", fmt.Errorf("load config: %w", err)
	}
	if _, _, err := config.SetupLogging(cfg.Tracing.Client); err != nil {
		return nil, cryptoid.PrivateKey{}, "", fmt.Errorf("set up tracing: %w", err)
	}
	return client.New(cfg), signer, address, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
