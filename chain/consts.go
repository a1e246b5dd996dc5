package chain

import "github.com/shillingchain/node/cryptoid"

// Protocol-wide constants. These mirror the reference node's fixed economic
// and difficulty parameters; they are not configurable per spec.
const (
	UserTransactionsPerBlock = 2
	TransactionsPerBlock     = UserTransactionsPerBlock + 1

	GenesisBlockReward = uint64(100)
	MiningReward       = uint64(1)

	ProofOfWorkDifficulty = 4

	StorageStartBalance       = uint64(100)
	StorageReward             = uint64(1)
	StorageRewardStartingFrom = uint64(10)
)

// StorageAddress is the reserved treasury address; re-exported from
// cryptoid so callers needn't import both packages for one constant.
const StorageAddress = cryptoid.StorageAddress
