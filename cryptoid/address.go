package cryptoid

import (
	"bytes"
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // pinned by the address format, not a choice of convenience
)

const (
	checksumLength = 4
	addressVersion = byte(0x00)

	// StorageAddress is the reserved treasury address. It is never derived
	// from a keypair and is compared by plain string equality everywhere a
	// "reserved address" rule applies.
	StorageAddress = "STORAGE"
)

// DeriveAddress turns a public key into a Base58Check address: prepend the
// uncompressed marker (already part of pub.Bytes()), SHA-256, RIPEMD-160,
// prepend the version byte, append a 4-byte checksum, Base58-encode.
func DeriveAddress(pub PublicKey) string {
	hash := publicKeyHash(pub.Bytes())
	versioned := append([]byte{addressVersion}, hash...)
	full := append(versioned, Checksum(versioned)...)
	return base58.Encode(full)
}

// ValidateAddress reports whether address decodes to a well-formed
// Base58Check payload with a matching checksum. It does not check that the
// address was ever actually derived from some known public key.
func ValidateAddress(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil {
		return false
	}
	if len(decoded) != 1+ripemd160.Size+checksumLength {
		return false
	}
	versioned := decoded[:1+ripemd160.Size]
	actual := decoded[1+ripemd160.Size:]
	return bytes.Equal(actual, Checksum(versioned))
}

func publicKeyHash(pubKey []byte) []byte {
	sha := sha256.Sum256(pubKey)
	hasher := ripemd160.New()
	hasher.Write(sha[:])
	return hasher.Sum(nil)
}

// Checksum returns the first checksumLength bytes of SHA-256(SHA-256(payload)).
func Checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumLength]
}
