// Copyright 2026 The CredVault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cipher implements at-rest encryption for credential passwords.
//
// Stored values use the envelope "hex(iv):hex(ciphertext)" produced by
// AES-256-CBC with a fresh random IV per encryption. Values persisted by the
// repository additionally carry the "encrypted:" sentinel prefix so repeated
// saves of an unmodified field never double-encrypt.
package cipher

import (
	aescipher "crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Sentinel marks values that already hold an encrypted envelope.
const Sentinel = "encrypted:"

const ivLength = 16

// Domain errors
var (
	ErrInvalidKey          = errors.New("encryption key must be exactly 32 bytes")
	ErrMalformedCiphertext = errors.New("malformed ciphertext envelope")
)

// KeyProvider supplies the symmetric encryption key. Injected at construction
// so tests can supply deterministic keys instead of reading process state.
type KeyProvider interface {
	EncryptionKey() []byte
}

// StaticKey is a KeyProvider backed by a fixed key
type StaticKey []byte

// EncryptionKey returns the key bytes
func (k StaticKey) EncryptionKey() []byte { return k }

// Cipher encrypts and decrypts credential password fields
type Cipher struct {
	keys KeyProvider
}

// New creates a Cipher. The provided key must be 32 bytes (AES-256).
func New(keys KeyProvider) (*Cipher, error) {
	if len(keys.EncryptionKey()) != 32 {
		return nil, ErrInvalidKey
	}
	return &Cipher{keys: keys}, nil
}

// Encrypt encrypts plaintext and returns the "hex(iv):hex(ciphertext)"
// envelope. A fresh random IV is generated per call.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aescipher.NewCipher(c.keys.EncryptionKey())
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), block.BlockSize())
	ct := make([]byte, len(padded))
	stdcipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Any malformed envelope (missing separator,
// invalid hex, wrong IV length, non-block-sized ciphertext) fails with
// ErrMalformedCiphertext; partial plaintext is never returned.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(envelope, ":")
	if !ok {
		return "", ErrMalformedCiphertext
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != ivLength {
		return "", ErrMalformedCiphertext
	}

	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	block, err := aescipher.NewCipher(c.keys.EncryptionKey())
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}
	if len(ct) == 0 || len(ct)%block.BlockSize() != 0 {
		return "", ErrMalformedCiphertext
	}

	pt := make([]byte, len(ct))
	stdcipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	unpadded, err := pkcs7Unpad(pt, block.BlockSize())
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	return string(unpadded), nil
}

// EncryptField encrypts a stored password field, adding the sentinel prefix.
// Idempotent: a value already carrying the sentinel is returned unchanged.
func (c *Cipher) EncryptField(value string) (string, error) {
	if strings.HasPrefix(value, Sentinel) {
		return value, nil
	}
	envelope, err := c.Encrypt(value)
	if err != nil {
		return "", err
	}
	return Sentinel + envelope, nil
}

// DecryptField decrypts a stored password field. A value without the sentinel
// prefix predates encryption and is returned as-is.
func (c *Cipher) DecryptField(value string) (string, error) {
	if !strings.HasPrefix(value, Sentinel) {
		return value, nil
	}
	return c.Decrypt(strings.TrimPrefix(value, Sentinel))
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}
