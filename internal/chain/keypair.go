package chain

import (
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/etherfuse-arb/internal/crypto"
)

// LoadKeypair reads a Solana CLI keypair file. Files written by
// crypto.EncryptKey are decrypted with password first.
func LoadKeypair(path, password string) (solana.PrivateKey, error) {
	if path == "" {
		return nil, errors.New("chain: no keypair configured (set --keypair)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chain: read keypair %s: %w", path, err)
	}

	if crypto.IsEncrypted(data) {
		raw, err := crypto.DecryptKey(data, password)
		if err != nil {
			return nil, fmt.Errorf("chain: decrypt keypair %s: %w", path, err)
		}
		return solana.PrivateKey(raw), nil
	}

	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("chain: parse keypair %s: %w", path, err)
	}
	return key, nil
}
