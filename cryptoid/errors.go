package cryptoid

import "errors"

// Failure kinds for the verify step order: Base58-decode, recoverable-sig
// parse, public-key recovery, address comparison, signature verify.
var (
	ErrParse        = errors.New("cryptoid: could not parse signature")
	ErrRecover      = errors.New("cryptoid: could not recover public key from signature")
	ErrAddressMismatch = errors.New("cryptoid: recovered address does not match claimed address")
	ErrVerify       = errors.New("cryptoid: signature does not verify")
)
