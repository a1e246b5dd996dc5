package cryptoid

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/mr-tron/base58"
)

// Sign produces a Base58-encoded recoverable ECDSA signature over
// sha256(data). The signed bytes are the 32-byte digest, not the raw UTF-8
// of data — this is the pinned choice for the open question of whether the
// signer hashes internally or the caller must pre-hash; verification below
// hashes data the same way, so the two are symmetric by construction.
func Sign(priv PrivateKey, data string) (string, error) {
	digest := sha256.Sum256([]byte(data))
	sig, err := ecdsa.SignCompact(priv.inner, digest[:], true)
	if err != nil {
		return "", fmt.Errorf("cryptoid: sign: %w", err)
	}
	return base58.Encode(sig), nil
}

// Verify recovers the public key that produced sig over sha256(data),
// derives its address, and fails if it differs from claimedAddress; only
// then does it verify the signature against the recovered key.
func Verify(sig, data, claimedAddress string) error {
	raw, err := base58.Decode(sig)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}
	digest := sha256.Sum256([]byte(data))
	pub, _, err := ecdsa.RecoverCompact(raw, digest[:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRecover, err)
	}
	recoveredAddress := DeriveAddress(PublicKey{inner: pub})
	if recoveredAddress != claimedAddress {
		return ErrAddressMismatch
	}
	sigParsed, err := parseCompact(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}
	if !sigParsed.Verify(digest[:], pub) {
		return ErrVerify
	}
	return nil
}

func parseCompact(raw []byte) (*ecdsa.Signature, error) {
	if len(raw) != 65 {
		return nil, fmt.Errorf("cryptoid: recoverable signature must be 65 bytes, got %d", len(raw))
	}
	// RecoverCompact already validated the recovery id; re-derive the
	// plain (non-recoverable) signature for the final Verify step by
	// dropping the leading recovery-id byte.
	r := new(btcec.ModNScalar)
	s := new(btcec.ModNScalar)
	r.SetByteSlice(raw[1:33])
	s.SetByteSlice(raw[33:65])
	return ecdsa.NewSignature(r, s), nil
}
