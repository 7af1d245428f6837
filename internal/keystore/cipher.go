// Copyright 2025 Tom Barlow
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

package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"io"
)

// masterKeySize is the AES-256 key length in bytes.
const masterKeySize = 32

var (
	// ErrInvalidKey is returned when the master key is not 32 bytes.
	ErrInvalidKey = stderrors.New("master key must be 32 bytes")

	// ErrInvalidCiphertext is returned when a sealed value cannot be
	// opened: wrong master key, corrupted data, or a ciphertext paired
	// with the wrong IV.
	ErrInvalidCiphertext = stderrors.New("invalid ciphertext")
)

// aesCipher seals and opens credential values under the process master
// key using AES-256-GCM. Every Seal draws a fresh IV, so sealing the
// same plaintext twice never yields the same ciphertext.
type aesCipher struct {
	gcm cipher.AEAD
}

func newAESCipher(masterKey []byte) (*aesCipher, error) {
	if len(masterKey) != masterKeySize {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidKey, len(masterKey))
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &aesCipher{gcm: gcm}, nil
}

// Seal encrypts plaintext and returns the ciphertext and IV as separate
// standard-base64 strings, matching the two columns they are stored in.
func (c *aesCipher) Seal(plaintext string) (ciphertext, iv string, err error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := c.gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed),
		base64.StdEncoding.EncodeToString(nonce),
		nil
}

// Open decrypts a (ciphertext, iv) pair produced by Seal.
func (c *aesCipher) Open(ciphertext, iv string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(nonce) != c.gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	plain, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	return string(plain), nil
}
