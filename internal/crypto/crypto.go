package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dukerupert/ritual/internal/model"
	"golang.org/x/crypto/argon2"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4

	formatV1 byte = 0x01
)

// DefaultPassphrase is the application-wide passphrase the storage key is
// derived from.
const DefaultPassphrase = "ritual_app_secret_key_2024"

var appSalt = []byte("ritual/storage/v1")

var encoding = base64.RawURLEncoding

// Engine encrypts JSON values into printable tokens and back.
type Engine struct {
	aead cipher.AEAD
}

// DeriveKey derives a 32-byte AES-256 key from a passphrase using Argon2id
// and the fixed application salt.
func DeriveKey(passphrase string) []byte {
	return argon2.IDKey([]byte(passphrase), appSalt, argonTime, argonMem, argonPar, keySize)
}

// New creates an engine keyed from passphrase.
func New(passphrase string) (*Engine, error) {
	return NewWithKey(DeriveKey(passphrase))
}

// NewWithKey creates an engine from a raw 32-byte key.
func NewWithKey(key []byte) (*Engine, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Engine{aead: gcm}, nil
}

var defaultEngine = sync.OnceValues(func() (*Engine, error) {
	return New(DefaultPassphrase)
})

// Default returns the shared engine keyed from DefaultPassphrase. The key
// is derived on first use.
func Default() (*Engine, error) {
	return defaultEngine()
}

// Encrypt serializes v to JSON and seals it.
func (e *Engine) Encrypt(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return e.Seal(plaintext)
}

// Seal encrypts plaintext with a fresh random nonce.
func (e *Engine) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+nonceSize+len(plaintext)+tagSize)
	out = append(out, formatV1)
	out = append(out, nonce...)
	out = e.aead.Seal(out, nonce, plaintext, nil)

	return encoding.EncodeToString(out), nil
}

// Open reverses Seal. Every failure is a *model.DecryptionError.
func (e *Engine) Open(token string) ([]byte, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &model.DecryptionError{Reason: "empty token"}
	}

	data, err := encoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return nil, &model.DecryptionError{Reason: "malformed token", Err: err}
	}
	if len(data) < 1+nonceSize+tagSize {
		return nil, &model.DecryptionError{Reason: "token too short"}
	}
	if data[0] != formatV1 {
		return nil, &model.DecryptionError{Reason: fmt.Sprintf("unknown format %#x", data[0])}
	}

	nonce := data[1 : 1+nonceSize]
	ciphertext := data[1+nonceSize:]

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &model.DecryptionError{Reason: "authentication failed", Err: err}
	}
	return plaintext, nil
}

// Decrypt opens token and unmarshals the JSON payload into v.
func (e *Engine) Decrypt(token string, v any) error {
	plaintext, err := e.Open(token)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return &model.DecryptionError{Reason: "payload is not valid JSON", Err: err}
	}
	return nil
}

// GenerateHash returns the lowercase hex SHA-256 of text.
func GenerateHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the digest of text and compares it with
// expectedHash in constant time.
func VerifyIntegrity(text, expectedHash string) bool {
	actual := GenerateHash(text)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(strings.ToLower(expectedHash))) == 1
}

// HashJSON hashes the JSON encoding of v.
func HashJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}
	return GenerateHash(string(data)), nil
}
