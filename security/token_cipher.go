package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-pushsync/core"
)

const keySize = 32

type Option func(*TokenCipher)

// TokenCipher encrypts credential secrets at rest with AES-256-CBC. The wire
// form is base64(iv || ciphertext) with a fresh random IV per call, so two
// encryptions of the same plaintext never compare equal. Interoperates with
// records written by earlier deployments of the same scheme.
type TokenCipher struct {
	key  []byte
	rand io.Reader
}

// WithRandSource overrides the IV source. Test use only.
func WithRandSource(source io.Reader) Option {
	return func(c *TokenCipher) {
		if source != nil {
			c.rand = source
		}
	}
}

// NewTokenCipher builds a cipher from a base64-encoded 256-bit key.
func NewTokenCipher(encodedKey string, opts ...Option) (*TokenCipher, error) {
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		return nil, fmt.Errorf("security: cipher key is required")
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("security: cipher key is not valid base64: %w", err)
	}
	return NewTokenCipherFromBytes(key, opts...)
}

func NewTokenCipherFromBytes(key []byte, opts ...Option) (*TokenCipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("security: cipher key must be %d bytes, got %d", keySize, len(key))
	}
	tokenCipher := &TokenCipher{
		key:  append([]byte(nil), key...),
		rand: rand.Reader,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(tokenCipher)
	}
	return tokenCipher, nil
}

func (c *TokenCipher) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: token cipher is nil")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, core.NewEncryptionError("security: cipher init failed: " + err.Error())
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return nil, core.NewEncryptionError("security: iv generation failed: " + err.Error())
	}

	padded := padPKCS7(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	payload := make([]byte, 0, len(iv)+len(ciphertext))
	payload = append(payload, iv...)
	payload = append(payload, ciphertext...)

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(payload)))
	base64.StdEncoding.Encode(encoded, payload)
	return encoded, nil
}

// Decrypt is strict: any malformed envelope, truncated payload, or bad
// padding is an encryption error. Callers treat that as fatal for the record
// it concerns and never substitute an empty secret.
func (c *TokenCipher) Decrypt(_ context.Context, encoded []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: token cipher is nil")
	}
	payload := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(payload, bytes.TrimSpace(encoded))
	if err != nil {
		return nil, core.NewEncryptionError("security: payload is not valid base64")
	}
	payload = payload[:n]

	if len(payload) < aes.BlockSize*2 || len(payload)%aes.BlockSize != 0 {
		return nil, core.NewEncryptionError("security: payload length is not a whole number of blocks")
	}
	iv, ciphertext := payload[:aes.BlockSize], payload[aes.BlockSize:]

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, core.NewEncryptionError("security: cipher init failed: " + err.Error())
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := unpadPKCS7(plaintext, aes.BlockSize)
	if err != nil {
		return nil, core.NewEncryptionError("security: " + err.Error())
	}
	return unpadded, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("padding check failed")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("padding check failed")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("padding check failed")
		}
	}
	return data[:len(data)-padding], nil
}

var _ core.SecretCipher = (*TokenCipher)(nil)
