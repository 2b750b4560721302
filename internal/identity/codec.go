// Package identity provides reversible obfuscation of Telegram user ids.
// The encrypted token is what the store keeps alongside a confession; it is
// never shown to anyone and is only there so an operator with the key could
// recover an author if legally required to.
package identity

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrNoKey means no identity key was configured. Callers must treat this as
// fatal at startup; a bot without the key cannot store authors recoverably.
var ErrNoKey = errors.New("identity: encryption key not configured")

// Codec encrypts and decrypts user ids under a fixed secret key.
//
// Tokens are deterministic: the nonce is an HMAC of the plaintext under a
// key derived from the master key (SIV construction), so encrypting the same
// id twice yields the same token and Decrypt(Encrypt(id)) == id.
type Codec struct {
	aead     cipher.AEAD
	nonceKey []byte
}

// NewCodec builds a Codec from a base64-encoded key. An empty key returns
// ErrNoKey; a key of the wrong length is a configuration error too.
func NewCodec(keyBase64 string) (*Codec, error) {
	if keyBase64 == "" {
		return nil, ErrNoKey
	}

	master, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("identity: key is not valid base64: %w", err)
	}
	if len(master) < 16 {
		return nil, fmt.Errorf("identity: key too short (%d bytes, need >= 16)", len(master))
	}

	// Derive independent encryption and nonce keys from the master key.
	kdf := hkdf.New(sha256.New, master, nil, []byte("confessbot/identity/v1"))
	encKey := make([]byte, chacha20poly1305.KeySize)
	nonceKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, encKey); err != nil {
		return nil, fmt.Errorf("identity: derive encryption key: %w", err)
	}
	if _, err := io.ReadFull(kdf, nonceKey); err != nil {
		return nil, fmt.Errorf("identity: derive nonce key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("identity: init cipher: %w", err)
	}

	return &Codec{aead: aead, nonceKey: nonceKey}, nil
}

// Encrypt turns a user id into an opaque storable token.
func (c *Codec) Encrypt(userID int64) (string, error) {
	plaintext := []byte(strconv.FormatInt(userID, 10))
	nonce := c.sivNonce(plaintext)
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// Decrypt recovers the user id from a token produced by Encrypt.
func (c *Codec) Decrypt(token string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("identity: malformed token: %w", err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return 0, errors.New("identity: token too short")
	}

	nonce, sealed := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return 0, fmt.Errorf("identity: token does not authenticate: %w", err)
	}

	id, err := strconv.ParseInt(string(plaintext), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("identity: token payload is not a user id: %w", err)
	}
	return id, nil
}

func (c *Codec) sivNonce(plaintext []byte) []byte {
	mac := hmac.New(sha256.New, c.nonceKey)
	mac.Write(plaintext)
	return mac.Sum(nil)[:chacha20poly1305.NonceSizeX]
}
