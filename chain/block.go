package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shillingchain/node/cryptoid"
)

var difficultyPrefix = strings.Repeat("0", ProofOfWorkDifficulty)

// Block is one link of the replicated chain: a miner-signed, proof-of-work
// sealed batch of transactions plus the resulting balance snapshot.
type Block struct {
	Miner          string            `json:"miner"`
	PreviousHash   string            `json:"previous_hash,omitempty"`
	Transactions   []Transaction     `json:"transactions"`
	BalanceState   map[string]uint64 `json:"balance_state"`
	Nonce          uint64            `json:"nonce"`
	CreatedAt      float64           `json:"created_at"`
	MinerSignature string            `json:"miner_signature,omitempty"`
}

// NewBlock starts an unmined, unsigned block stamped with the current
// time. previousHash is empty for genesis.
func NewBlock(miner, previousHash string, transactions []Transaction, balanceState map[string]uint64) *Block {
	return &Block{
		Miner:        miner,
		PreviousHash: previousHash,
		Transactions: transactions,
		BalanceState: balanceState,
		Nonce:        0,
		CreatedAt:    float64(time.Now().UnixNano()) / 1e9,
	}
}

type blockHashBody struct {
	Miner        string  `json:"miner"`
	PreviousHash string  `json:"previous_hash"`
	Transactions string  `json:"transactions"`
	BalanceState string  `json:"balance_state"`
	Nonce        uint64  `json:"nonce"`
	CreatedAt    float64 `json:"created_at"`
}

// BodyHash is hex(sha256(canonical JSON of miner, previous_hash,
// transactions and balance_state (each embedded as its own canonical JSON
// string), nonce and created_at)) — everything but miner_signature.
func (b Block) BodyHash() (string, error) {
	txJSON, err := canonicalJSON(b.Transactions)
	if err != nil {
		return "", err
	}
	balanceJSON, err := canonicalJSON(b.BalanceState)
	if err != nil {
		return "", err
	}
	body, err := canonicalJSON(blockHashBody{
		Miner:        b.Miner,
		PreviousHash: b.PreviousHash,
		Transactions: string(txJSON),
		BalanceState: string(balanceJSON),
		Nonce:        b.Nonce,
		CreatedAt:    b.CreatedAt,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// Sign sets MinerSignature to a recoverable signature by miner over the
// block's body hash.
func (b *Block) Sign(miner cryptoid.PrivateKey) error {
	hash, err := b.BodyHash()
	if err != nil {
		return err
	}
	sig, err := cryptoid.Sign(miner, hash)
	if err != nil {
		return err
	}
	b.MinerSignature = sig
	return nil
}

// Mine runs the cooperative proof-of-work search: increment Nonce from its
// current value until BodyHash begins with ProofOfWorkDifficulty zero hex
// characters. On each iteration it polls the package-level Mining flag;
// finding it false means a competing block arrived and this attempt must
// abort with ErrMiningStopped. Callers must set Mining true before calling.
func (b *Block) Mine() error {
	for {
		if !Mining.Load() {
			return ErrMiningStopped
		}
		hash, err := b.BodyHash()
		if err != nil {
			return err
		}
		if strings.HasPrefix(hash, difficultyPrefix) {
			return nil
		}
		b.Nonce++
	}
}

// ValidateIntegrity runs the checks of spec §4.3 in order against the
// current chain tip (last) and a balance lookup for addresses as of the
// block immediately before this one. It assumes b is not the genesis
// block; add_block skips this call entirely for genesis.
func (b Block) ValidateIntegrity(last Block, balanceBefore func(address string) uint64) error {
	lastHash, err := last.BodyHash()
	if err != nil {
		return err
	}
	if b.PreviousHash != lastHash {
		return ErrPreviousHashMismatch
	}

	hash, err := b.BodyHash()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(hash, difficultyPrefix) {
		return ErrInvalidProofOfWork
	}

	if b.MinerSignature == "" {
		return ErrNotSigned
	}
	if err := cryptoid.Verify(b.MinerSignature, hash, b.Miner); err != nil {
		return fmt.Errorf("%w: %w", ErrBadMinerSignature, err)
	}

	if err := b.validateTransactions(balanceBefore); err != nil {
		return err
	}

	now := float64(time.Now().UnixNano()) / 1e9
	if b.CreatedAt > now {
		return ErrBlockInFuture
	}
	if b.CreatedAt <= last.CreatedAt {
		return ErrPredecessorNotBefore
	}
	return nil
}

func (b Block) validateTransactions(balanceBefore func(address string) uint64) error {
	if len(b.Transactions) != TransactionsPerBlock {
		return ErrWrongTransactionCount
	}

	seenRandom := make(map[string]struct{}, len(b.Transactions))
	rewardCount := 0
	deltas := make(map[string]int64, len(b.Transactions)*2)

	for _, tx := range b.Transactions {
		if _, dup := seenRandom[tx.RandomString]; dup {
			return ErrRandomStringCollision
		}
		seenRandom[tx.RandomString] = struct{}{}

		if err := tx.ValidateIntegrity(b.PreviousHash); err != nil {
			return err
		}

		if tx.Sender == cryptoid.StorageAddress {
			rewardCount++
			if tx.Recipient != b.Miner {
				return ErrRewardNotMiner
			}
			if tx.Amount != MiningReward {
				return ErrInvalidReward
			}
		} else {
			deltas[tx.Sender] -= int64(tx.Amount) + int64(tx.AmountToStorage)
		}
		deltas[tx.Recipient] += int64(tx.Amount)
		if tx.AmountToStorage > 0 {
			deltas[cryptoid.StorageAddress] += int64(tx.AmountToStorage)
		}
	}
	if rewardCount != 1 {
		return ErrWrongTransactionCount
	}

	for address, delta := range deltas {
		got, ok := b.BalanceState[address]
		if !ok {
			return ErrMissingBalanceEntry
		}
		before := balanceBefore(address)
		want := int64(before) + delta
		if want < 0 {
			return ErrBalanceUnderflow
		}
		if uint64(want) != got {
			// Distinguish an overflow of the *projected* value from a
			// plain mismatch: if the addition itself would not fit in
			// 64 bits while got does, call it overflow.
			if delta > 0 && before > ^uint64(0)-uint64(delta) {
				return ErrBalanceOverflow
			}
			return ErrBalanceMismatch
		}
	}
	return nil
}
