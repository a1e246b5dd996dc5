package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shillingchain/node/cryptoid"
)

// Engine orchestrates transaction admission, balance computation, mining
// and bulk rebuild over one Store. It is an ordinary value: callers hold
// one instance per process behind a sync.RWMutex (see package node); only
// the Mining and dbIOLocked flags are process-wide (see atomics.go).
type Engine struct {
	store        Store
	path         string
	Miner        cryptoid.PrivateKey
	MinerAddress string
	preparing    PreparingState
}

// LoadOrCreate opens (or creates) the store at path and returns an Engine
// ready to mine as miner. It does not mine the genesis block itself —
// callers check Len() == 0 and call MineGenesisBlock, mirroring the node
// entrypoint's unconditional bootstrap-if-empty behavior.
func LoadOrCreate(path string, miner cryptoid.PrivateKey) (*Engine, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:        store,
		path:         path,
		Miner:        miner,
		MinerAddress: cryptoid.DeriveAddress(miner.Public()),
		preparing:    newPreparingState(),
	}, nil
}

// Len reports the number of blocks currently persisted.
func (e *Engine) Len() (int, error) {
	return e.store.Count()
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// LastBlockHash returns the body hash of the chain tip, or "" if the
// chain is empty.
func (e *Engine) LastBlockHash() (string, error) {
	last, err := e.store.GetLast()
	if err != nil {
		if errors.Is(err, ErrEmptyChain) {
			return "", nil
		}
		return "", err
	}
	return last.BodyHash()
}

// Blocks returns every block in insertion order, for GetBlocks replies and
// for feeding RebuildFromString on the requesting peer.
func (e *Engine) Blocks() ([]Block, error) {
	return e.store.GetAll()
}

// MineGenesisBlock seeds the chain: balance_state credits the miner with
// GenesisBlockReward and storage with StorageStartBalance, no
// transactions, then mines and signs.
func (e *Engine) MineGenesisBlock() error {
	count, err := e.store.Count()
	if err != nil {
		return err
	}
	if count != 0 {
		return fmt.Errorf("chain: mine_genesis_block: chain already has %d blocks", count)
	}

	block := NewBlock(e.MinerAddress, "", nil, map[string]uint64{
		e.MinerAddress: GenesisBlockReward,
		StorageAddress: StorageStartBalance,
	})

	Mining.Store(true)
	err = block.Mine()
	Mining.Store(false)
	if err != nil {
		return err
	}
	if err := block.Sign(e.Miner); err != nil {
		return err
	}
	return e.AddBlock(*block, true)
}

// projectedBalance reads the preparing state first, falling back to the
// persisted chain, matching get_balance's fallback order.
func (e *Engine) projectedBalance(address string) (uint64, error) {
	if bal, ok := e.preparing.BalanceState[address]; ok {
		return bal, nil
	}
	return e.GetBalanceFromDatabase(address, nil)
}

// GetBalance is the public form of projectedBalance.
func (e *Engine) GetBalance(address string) (uint64, error) {
	return e.projectedBalance(address)
}

// GetBalanceFromDatabase returns the most recent balance_state[address]
// strictly before the block "before" (matched by body hash), or from any
// persisted block when before is nil. Returns 0 if address was never seen.
func (e *Engine) GetBalanceFromDatabase(address string, before *Block) (uint64, error) {
	blocks, err := e.store.GetAll()
	if err != nil {
		return 0, err
	}
	limit := len(blocks)
	if before != nil {
		beforeHash, err := before.BodyHash()
		if err != nil {
			return 0, err
		}
		for i, b := range blocks {
			hash, err := b.BodyHash()
			if err != nil {
				return 0, err
			}
			if hash == beforeHash {
				limit = i
				break
			}
		}
	}
	for i := limit - 1; i >= 0; i-- {
		if bal, ok := blocks[i].BalanceState[address]; ok {
			return bal, nil
		}
	}
	return 0, nil
}

// AddTransaction admits tx into the preparing state: enforces the
// per-block user-transaction limit, validates integrity, then debits the
// sender, credits the recipient, and credits storage when a tax applies.
// A storage-sent reward transaction debits nothing: the reward is minted,
// matching how Block.ValidateIntegrity projects balances.
func (e *Engine) AddTransaction(tx Transaction) error {
	count, err := e.store.Count()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("chain: add_transaction: chain is empty")
	}

	if tx.Sender != cryptoid.StorageAddress && e.preparing.userTransactionCount() >= UserTransactionsPerBlock {
		return ErrLimitReached
	}

	lastHash, err := e.LastBlockHash()
	if err != nil {
		return err
	}
	if err := tx.ValidateIntegrity(lastHash); err != nil {
		return err
	}

	if tx.Sender != cryptoid.StorageAddress {
		senderBalance, err := e.projectedBalance(tx.Sender)
		if err != nil {
			return err
		}
		total := tx.Amount + tx.AmountToStorage
		if senderBalance < total {
			return ErrNotEnoughMoney
		}
		e.preparing.BalanceState[tx.Sender] = senderBalance - total
	}

	recipientBalance, err := e.projectedBalance(tx.Recipient)
	if err != nil {
		return err
	}
	e.preparing.BalanceState[tx.Recipient] = recipientBalance + tx.Amount

	if tx.AmountToStorage > 0 {
		storageBalance, err := e.projectedBalance(cryptoid.StorageAddress)
		if err != nil {
			return err
		}
		e.preparing.BalanceState[cryptoid.StorageAddress] = storageBalance + tx.AmountToStorage
	}

	e.preparing.Transactions = append(e.preparing.Transactions, tx)
	return nil
}

// Minable reports whether the preparing state holds enough user
// transactions for MineBlock to proceed.
func (e *Engine) Minable() bool {
	return e.preparing.filled()
}

// PrepareBlock synthesizes the miner's self-reward and snapshots (and
// clears) the preparing state, then returns a new, as-yet-unmined and
// unsigned block built from that snapshot. Splitting this out from
// MineBlock lets a caller holding a shared writer lock release it before
// running the PoW search: spec §5/§9's "mining isolation" requires that
// PoW and signing happen on a private copy of the state, with the writer
// lock reacquired only to call AddBlock. Engine itself does not hold any
// lock — that is the caller's responsibility (see package node).
func (e *Engine) PrepareBlock() (*Block, error) {
	if Mining.Load() {
		return nil, fmt.Errorf("chain: mine_block: mining is already in progress")
	}
	if !e.preparing.filled() {
		return nil, fmt.Errorf("chain: mine_block: preparing state is not filled")
	}

	lastHash, err := e.LastBlockHash()
	if err != nil {
		return nil, err
	}
	reward, err := NewTransaction(cryptoid.StorageAddress, e.MinerAddress, MiningReward, lastHash)
	if err != nil {
		return nil, err
	}
	if err := e.AddTransaction(reward); err != nil {
		return nil, err
	}

	snapshot := e.preparing.take()
	return NewBlock(e.MinerAddress, lastHash, snapshot.Transactions, snapshot.BalanceState), nil
}

// MineBlock is PrepareBlock followed by Mine, Sign and AddBlock run
// back-to-back with no intervening lock release. It is the right call for
// a single-threaded caller such as a test; a concurrent server
// should use PrepareBlock directly so it can drop its writer lock before
// the PoW search (see node.Node.handleAddTransaction).
func (e *Engine) MineBlock() (Block, error) {
	block, err := e.PrepareBlock()
	if err != nil {
		return Block{}, err
	}

	Mining.Store(true)
	err = block.Mine()
	Mining.Store(false)
	if err != nil {
		return Block{}, err
	}

	if err := block.Sign(e.Miner); err != nil {
		return Block{}, err
	}
	if err := e.AddBlock(*block, false); err != nil {
		return Block{}, err
	}
	return *block, nil
}

// AddBlock always clears the preparing state and turns off the mining
// flag first — a new block invalidates whatever this node was building,
// whether it came from this node's own miner or a peer's broadcast. It
// runs ValidateIntegrity unless isGenesis, then persists.
func (e *Engine) AddBlock(block Block, isGenesis bool) error {
	e.preparing.clear()
	Mining.Store(false)

	if !isGenesis {
		last, err := e.store.GetLast()
		if err != nil {
			return err
		}
		balanceBefore := func(address string) uint64 {
			bal, _ := e.GetBalanceFromDatabase(address, nil)
			return bal
		}
		if err := block.ValidateIntegrity(last, balanceBefore); err != nil {
			return err
		}
	}
	return e.store.Insert(block)
}

// RebuildFromString deserializes a JSON array of blocks and replays each
// through AddBlock into a temporary store; only on full success does it
// atomically swap the temporary store into place. Only one rebuild may
// run at a time (single-flight, enforced via the package-level
// dbIOLocked flag).
func (e *Engine) RebuildFromString(s string) error {
	acquireRebuildLock()
	defer releaseRebuildLock()

	var blocks []Block
	if err := json.Unmarshal([]byte(s), &blocks); err != nil {
		return fmt.Errorf("chain: rebuild_from_string: decode: %w", err)
	}

	tempPath := tempStorePath(e.path)
	_ = os.RemoveAll(tempPath)
	temp, err := OpenStore(tempPath)
	if err != nil {
		return err
	}

	tempEngine := &Engine{
		store:        temp,
		path:         tempPath,
		Miner:        e.Miner,
		MinerAddress: e.MinerAddress,
		preparing:    newPreparingState(),
	}
	for i, block := range blocks {
		if err := tempEngine.AddBlock(block, i == 0); err != nil {
			temp.Close()
			os.RemoveAll(tempPath)
			return fmt.Errorf("chain: rebuild_from_string: replay block %d: %w", i, err)
		}
	}

	// A rebuild always wins over in-flight mining: the chain it is
	// about to replace is stale by definition.
	Mining.Store(false)

	if err := temp.Close(); err != nil {
		os.RemoveAll(tempPath)
		return err
	}
	if err := e.store.Close(); err != nil {
		return err
	}
	if err := os.RemoveAll(e.path); err != nil {
		return err
	}
	if err := os.Rename(tempPath, e.path); err != nil {
		return err
	}

	newStore, err := OpenStore(e.path)
	if err != nil {
		return err
	}
	e.store = newStore
	e.preparing.clear()
	return nil
}

func tempStorePath(livePath string) string {
	dir, base := filepath.Split(strings.TrimRight(livePath, string(filepath.Separator)))
	return filepath.Join(dir, "temp-"+base)
}
