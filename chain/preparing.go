package chain

// PreparingState is the engine's in-memory accumulator of admitted
// transactions and their projected balances, reset whenever a block is
// appended or the chain is rebuilt from a peer.
type PreparingState struct {
	Transactions []Transaction
	BalanceState map[string]uint64
}

func newPreparingState() PreparingState {
	return PreparingState{BalanceState: make(map[string]uint64)}
}

func (p *PreparingState) clear() {
	p.Transactions = nil
	p.BalanceState = make(map[string]uint64)
}

// filled reports whether the state holds enough user transactions to mine
// (the reward transaction added during mine_block brings the count up to
// TransactionsPerBlock).
func (p PreparingState) filled() bool {
	userCount := 0
	for _, tx := range p.Transactions {
		if tx.Sender != StorageAddress {
			userCount++
		}
	}
	return userCount >= UserTransactionsPerBlock
}

func (p PreparingState) userTransactionCount() int {
	count := 0
	for _, tx := range p.Transactions {
		if tx.Sender != StorageAddress {
			count++
		}
	}
	return count
}

func (p *PreparingState) take() PreparingState {
	snapshot := *p
	p.clear()
	return snapshot
}
