// ABOUTME: Optional end-to-end encryption for the Matrix adapter
// ABOUTME: Keeps an olm store on disk and verifies the device with a recovery key

package matrix

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"maunium.net/go/mautrix/crypto/cryptohelper"
)

// Encryption owns the crypto store attached to a Client.
type Encryption struct {
	helper *cryptohelper.CryptoHelper
}

// EnableEncryption attaches a crypto helper so that encrypted rooms are
// decrypted before they reach the event stream and replies are encrypted.
// It must be called before Run. A failed recovery key verification is
// logged and encryption stays enabled without cross-signing.
func (c *Client) EnableEncryption(ctx context.Context, recoveryKey, dataDir string) (*Encryption, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating crypto directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, fmt.Sprintf("warden-crypto-%s.db", slugify(c.self.String())))
	c.logger.Info("setting up encryption", "db", dbPath)

	helper, err := cryptohelper.NewCryptoHelper(c.mx, deriveStoreKey(c.self.String()), dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}
	c.mx.Crypto = helper

	enc := &Encryption{helper: helper}
	if recoveryKey == "" {
		c.logger.Info("encryption initialized without cross-signing")
		return enc, nil
	}

	if err := enc.verify(ctx, recoveryKey); err != nil {
		c.logger.Warn("failed to verify with recovery key", "error", err)
	} else {
		c.logger.Info("device verified with recovery key")
	}
	return enc, nil
}

func (e *Encryption) verify(ctx context.Context, recoveryKey string) error {
	machine := e.helper.Machine()
	if machine == nil {
		return errors.New("crypto machine not initialized")
	}
	if err := machine.VerifyWithRecoveryKey(ctx, recoveryKey); err != nil {
		return fmt.Errorf("recovery key verification failed: %w", err)
	}
	return nil
}

// Close releases the crypto store.
func (e *Encryption) Close() error {
	if e == nil || e.helper == nil {
		return nil
	}
	return e.helper.Close()
}

// slugify turns @warden:example.org into warden_example.org.
func slugify(userID string) string {
	out := make([]byte, 0, len(userID))
	for i := 0; i < len(userID); i++ {
		ch := userID[i]
		switch {
		case i == 0 && ch == '@':
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9',
			ch == '.', ch == '-', ch == '_':
			out = append(out, ch)
		case ch == ':':
			out = append(out, '_')
		}
	}
	return string(out)
}

// deriveStoreKey gives each bot account its own pickle key.
func deriveStoreKey(userID string) []byte {
	h := sha256.Sum256([]byte("warden-crypto:" + userID))
	return h[:]
}
