package chain

import "errors"

// Validation-leaf errors (spec §7, "Validation" category).
var (
	ErrRecipientIsStorage      = errors.New("chain: recipient is the storage address")
	ErrSignatureEmpty          = errors.New("chain: sender signature is empty")
	ErrVerifyFailed            = errors.New("chain: sender signature does not verify")
	ErrPreviousHashMismatch    = errors.New("chain: previous_block_hash does not match the chain tip")
	ErrInvalidProofOfWork      = errors.New("chain: body hash does not satisfy the proof-of-work difficulty")
	ErrNotSigned               = errors.New("chain: miner_signature is empty")
	ErrBadMinerSignature       = errors.New("chain: miner signature does not verify")
	ErrWrongTransactionCount   = errors.New("chain: block does not have exactly TransactionsPerBlock transactions")
	ErrRandomStringCollision   = errors.New("chain: two transactions in the same block share a random_string")
	ErrRewardNotMiner          = errors.New("chain: the reward transaction's recipient is not the miner")
	ErrInvalidReward           = errors.New("chain: the reward transaction amount is not MiningReward")
	ErrMissingBalanceEntry     = errors.New("chain: address missing from the block's balance_state")
	ErrBalanceOverflow         = errors.New("chain: balance_state entry overflows a 64-bit balance")
	ErrBalanceUnderflow        = errors.New("chain: balance_state entry underflows a 64-bit balance")
	ErrBalanceMismatch         = errors.New("chain: balance_state entry does not match the projected balance")
	ErrBlockInFuture           = errors.New("chain: created_at is after the validating node's clock")
	ErrPredecessorNotBefore    = errors.New("chain: created_at is not strictly after the predecessor's created_at")

	// Engine-level errors (spec §7, "Engine" category).
	ErrLimitReached   = errors.New("chain: preparing-block state already holds UserTransactionsPerBlock transactions")
	ErrNotEnoughMoney = errors.New("chain: sender does not have enough balance for amount + amount_to_storage")
	ErrMiningStopped  = errors.New("chain: mining flag was cleared before proof-of-work finished")

	// Rebuild / store errors.
	ErrRebuildInProgress = errors.New("chain: a rebuild is already in progress")
	ErrEmptyChain        = errors.New("chain: the chain has no blocks yet")
)
