// Package cryptoid implements the node's identity primitives: secp256k1
// keypairs, Base58Check address derivation, and recoverable ECDSA
// signing/verification over transaction and block body-hashes.
package cryptoid

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// PrivateKey wraps a secp256k1 signing key. The zero value is not usable;
// construct with GenerateKey or PrivateKeyFromBytes.
type PrivateKey struct {
	inner *btcec.PrivateKey
}

// PublicKey wraps a secp256k1 verification key.
type PublicKey struct {
	inner *btcec.PublicKey
}

// GenerateKey creates a fresh signing key using crypto/rand.
func GenerateKey() (PrivateKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return PrivateKey{}, err
	}
	return PrivateKey{inner: k}, nil
}

// Public derives the public key for k.
func (k PrivateKey) Public() PublicKey {
	return PublicKey{inner: k.inner.PubKey()}
}

// Bytes returns the 32-byte private scalar, suitable for persisting the
// node's keypair file.
func (k PrivateKey) Bytes() []byte {
	return k.inner.Serialize()
}

// PrivateKeyFromBytes reconstructs a signing key from its 32-byte scalar,
// as read back from the keypair file on node startup.
func PrivateKeyFromBytes(b []byte) PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(b)
	return PrivateKey{inner: priv}
}

// Bytes returns the 65-byte uncompressed public key: 0x04 prefix followed
// by the X and Y coordinates.
func (p PublicKey) Bytes() []byte {
	return p.inner.SerializeUncompressed()
}
