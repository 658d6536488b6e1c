package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Encryptor protects raw aggregator payloads at rest.
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

const hkdfInfo = "finance-api raw payload v1"

// AESEncryptor is AES-256-GCM with a key derived from a secret through
// HKDF-SHA256. Output is base64(nonce || ciphertext).
type AESEncryptor struct {
	aead cipher.AEAD
}

func NewAESEncryptor(secret string) (*AESEncryptor, error) {
	if len(secret) < 16 {
		return nil, errors.New("DATA_ENCRYPTION_KEY must be at least 16 characters")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESEncryptor{aead: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce, so two calls with the
// same input never produce the same output.
func (e *AESEncryptor) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := e.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (e *AESEncryptor) Decrypt(cryptoText string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(cryptoText)
	if err != nil {
		return nil, err
	}

	nonceSize := e.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return e.aead.Open(nil, nonce, ciphertext, nil)
}

// EncryptJSON marshals v and encrypts the result.
func EncryptJSON(enc Encryptor, v any) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return enc.Encrypt(plain)
}

// DecryptJSON decrypts a payload that must hold valid JSON.
func DecryptJSON(enc Encryptor, cryptoText string) (json.RawMessage, error) {
	plain, err := enc.Decrypt(cryptoText)
	if err != nil {
		return nil, err
	}
	if !json.Valid(plain) {
		return nil, errors.New("decrypted payload is not JSON")
	}
	return json.RawMessage(plain), nil
}
