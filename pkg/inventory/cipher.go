package inventory

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyEnv names the environment variable that may carry the inventory passphrase.
const KeyEnv = "DDP_INVENTORY_KEY"

// builtinKey is compiled into the binary. Anyone holding the binary can
// recover credentials encrypted with it; it only keeps plaintext out of the
// inventory file. Use a key file or KeyEnv for real protection.
var builtinKey = []byte{
	0x4e, 0x1f, 0x93, 0x2c, 0xb7, 0x05, 0x6a, 0xd1,
	0x38, 0xe2, 0x7c, 0x90, 0x15, 0xaf, 0x64, 0x0b,
	0xc9, 0x52, 0x2e, 0x87, 0xf3, 0x19, 0xbd, 0x46,
	0x71, 0x0a, 0xde, 0x83, 0x5c, 0x29, 0x96, 0xe4,
}

// kdfSalt is fixed so a passphrase always yields the same key.
var kdfSalt = []byte("ddpfleet/inventory/v1")

// ErrDecrypt is returned when a token cannot be authenticated under the key.
var ErrDecrypt = errors.New("credential token cannot be decrypted with the configured key")

// Cipher encrypts inventory credentials with XChaCha20-Poly1305. Tokens are
// URL-safe base64 of nonce || ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid inventory key: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// DefaultCipher returns the cipher keyed with the built-in key.
func DefaultCipher() *Cipher {
	c, err := NewCipher(builtinKey)
	if err != nil {
		panic(err)
	}
	return c
}

// CipherFromPassphrase derives a key from passphrase with argon2id.
func CipherFromPassphrase(passphrase []byte) (*Cipher, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("inventory passphrase is empty")
	}
	key := argon2.IDKey(passphrase, kdfSalt, 1, 64*1024, 4, chacha20poly1305.KeySize)
	return NewCipher(key)
}

// ResolveCipher picks the key source: keyFile when set, then the KeyEnv
// variable, then the built-in key.
func ResolveCipher(keyFile string) (*Cipher, error) {
	if keyFile != "" {
		raw, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, &ConfigError{Path: keyFile, Err: fmt.Errorf("cannot read key file: %w", err)}
		}
		c, err := CipherFromPassphrase([]byte(strings.TrimSpace(string(raw))))
		if err != nil {
			return nil, &ConfigError{Path: keyFile, Err: err}
		}
		return c, nil
	}
	if pass := os.Getenv(KeyEnv); pass != "" {
		c, err := CipherFromPassphrase([]byte(pass))
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		return c, nil
	}
	return DefaultCipher(), nil
}

// Encrypt seals plaintext into a token.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// EncryptString seals a string.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// Decrypt opens a token. The caller owns the returned slice and should wipe it.
func (c *Cipher) Decrypt(token string) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64: %v", ErrDecrypt, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: token too short", ErrDecrypt)
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// DecryptString opens a token into a string.
func (c *Cipher) DecryptString(token string) (string, error) {
	plain, err := c.Decrypt(token)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
