package cryptoid

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoadOrCreateKey reads the 32-byte signing key at path, or generates and
// persists a fresh one if the file does not yet exist. This is the node's
// identity lifecycle of spec §3 ("created once per node, persisted; never
// mutated") — the file itself is an external collaborator per spec §1, but
// the load-or-create sequencing lives here so cmd/node and cmd/client share
// it instead of duplicating it.
func LoadOrCreateKey(path string) (PrivateKey, error) {
	bytes, err := os.ReadFile(path)
	if err == nil {
		return PrivateKeyFromBytes(bytes), nil
	}
	if !os.IsNotExist(err) {
		return PrivateKey{}, fmt.Errorf("cryptoid: read keypair file %s: %w", path, err)
	}

	priv, err := GenerateKey()
	if err != nil {
		return PrivateKey{}, fmt.Errorf("cryptoid: generate keypair: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return PrivateKey{}, fmt.Errorf("cryptoid: create keypair directory: %w", err)
	}
	if err := os.WriteFile(path, priv.Bytes(), 0o600); err != nil {
		return PrivateKey{}, fmt.Errorf("cryptoid: write keypair file %s: %w", path, err)
	}
	return priv, nil
}
