package chain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/shillingchain/node/cryptoid"
)

// Transaction moves Amount from Sender to Recipient, plus a deterministic
// storage tax, as of the chain tip identified by PreviousBlockHash.
type Transaction struct {
	Sender            string `json:"sender"`
	Recipient         string `json:"recipient"`
	Amount            uint64 `json:"amount"`
	AmountToStorage   uint64 `json:"amount_to_storage"`
	PreviousBlockHash string `json:"previous_block_hash"`
	RandomString      string `json:"random_string"`
	SenderSignature   string `json:"sender_signature,omitempty"`
}

// NewTransaction builds an unsigned transaction. amount must be > 0; the
// storage tax and the random nonce are both computed here, not at sign
// time, so BodyHash is stable before and after signing.
func NewTransaction(sender, recipient string, amount uint64, previousBlockHash string) (Transaction, error) {
	if amount == 0 {
		return Transaction{}, fmt.Errorf("chain: transaction amount must be > 0")
	}
	random, err := randomString()
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		Sender:            sender,
		Recipient:         recipient,
		Amount:            amount,
		AmountToStorage:   amountToStorage(amount),
		PreviousBlockHash: previousBlockHash,
		RandomString:      random,
	}, nil
}

func amountToStorage(amount uint64) uint64 {
	if amount >= StorageRewardStartingFrom {
		return StorageReward
	}
	return 0
}

func randomString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("chain: generate random_string: %w", err)
	}
	return base58.Encode(buf), nil
}

type transactionHashBody struct {
	Sender            string `json:"sender"`
	Recipient         string `json:"recipient"`
	Amount            uint64 `json:"amount"`
	AmountToStorage   uint64 `json:"amount_to_storage"`
	PreviousBlockHash string `json:"previous_block_hash"`
	RandomString      string `json:"random_string"`
}

// BodyHash is hex(sha256(canonical JSON of every field but the signature)).
func (t Transaction) BodyHash() (string, error) {
	body, err := canonicalJSON(transactionHashBody{
		Sender:            t.Sender,
		Recipient:         t.Recipient,
		Amount:            t.Amount,
		AmountToStorage:   t.AmountToStorage,
		PreviousBlockHash: t.PreviousBlockHash,
		RandomString:      t.RandomString,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// Sign sets SenderSignature to a recoverable signature by signer over the
// transaction's body hash. Callers must not sign on behalf of
// cryptoid.StorageAddress; reward transactions stay unsigned by design.
func (t *Transaction) Sign(signer cryptoid.PrivateKey) error {
	hash, err := t.BodyHash()
	if err != nil {
		return err
	}
	sig, err := cryptoid.Sign(signer, hash)
	if err != nil {
		return err
	}
	t.SenderSignature = sig
	return nil
}

// ValidateIntegrity runs the three checks of spec §4.2 in order:
// recipient must not be storage, the sender's signature must verify
// (skipped for storage-sent reward transactions), and previous_block_hash
// must match chainTipHash.
func (t Transaction) ValidateIntegrity(chainTipHash string) error {
	if t.Recipient == cryptoid.StorageAddress {
		return ErrRecipientIsStorage
	}
	if t.Sender != cryptoid.StorageAddress {
		if t.SenderSignature == "" {
			return ErrSignatureEmpty
		}
		hash, err := t.BodyHash()
		if err != nil {
			return err
		}
		if err := cryptoid.Verify(t.SenderSignature, hash, t.Sender); err != nil {
			return fmt.Errorf("%w: %w", ErrVerifyFailed, err)
		}
	}
	if t.PreviousBlockHash != chainTipHash {
		return ErrPreviousHashMismatch
	}
	return nil
}
