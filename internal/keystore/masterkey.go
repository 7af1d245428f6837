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
	"crypto/rand"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
)

const (
	// MasterKeyEnv carries the master key. The value is either a
	// standard-base64 32-byte key or an arbitrary passphrase that is
	// stretched to one with argon2id.
	MasterKeyEnv = "BATON_MASTER_KEY"

	keyringService   = "baton"
	keyringMasterKey = "master-key"
)

// argon2id parameters for the passphrase path: time=3, memory=64MB,
// four lanes.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// passphraseSalt is fixed so the same passphrase derives the same key
// on every start with nothing stored beside it. Operators who want a
// per-install salt should supply a full base64 key instead.
var passphraseSalt = []byte("baton/master-key/v1")

var (
	// generatedKeyCache keeps a generated key stable for the life of
	// the process when the keyring cannot persist it.
	generatedKeyCache   []byte
	generatedKeyCacheMu sync.Mutex
)

// LoadMasterKey resolves the 32-byte key that seals stored credentials.
//
// Resolution order:
//  1. MasterKeyEnv, decoded as base64 when it yields 32 bytes and
//     stretched as a passphrase otherwise.
//  2. The OS keyring (macOS Keychain, Linux Secret Service, Windows
//     Credential Manager).
//  3. A newly generated key, stored in the keyring for the next start.
//
// When the keyring cannot store a generated key the key is cached for
// this process and printed to stderr with instructions, so the operator
// can pin it before a restart strands the sealed values.
func LoadMasterKey() ([]byte, error) {
	if env := os.Getenv(MasterKeyEnv); env != "" {
		return keyFromEnv(env), nil
	}

	available := keyringAvailable()
	if available {
		key, err := keyFromKeyring()
		if err == nil {
			return key, nil
		}
		if !stderrors.Is(err, keyring.ErrNotFound) {
			return nil, err
		}
	}

	return generateMasterKey(available)
}

func keyFromEnv(value string) []byte {
	if raw, err := base64.StdEncoding.DecodeString(value); err == nil && len(raw) == masterKeySize {
		return raw
	}

	// Not a literal key, so treat it as a passphrase.
	return argon2.IDKey([]byte(value), passphraseSalt, argonTime, argonMemory, argonThreads, masterKeySize)
}

// keyringAvailable probes the keyring with a read. Only errors other
// than "not found" mean the keyring itself is unusable.
func keyringAvailable() bool {
	_, err := keyring.Get(keyringService, "__baton_availability_test__")
	return err == nil || stderrors.Is(err, keyring.ErrNotFound)
}

func keyFromKeyring() ([]byte, error) {
	encoded, err := keyring.Get(keyringService, keyringMasterKey)
	if err != nil {
		return nil, err
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode master key from keyring: %w", err)
	}
	if len(key) != masterKeySize {
		return nil, fmt.Errorf("master key in keyring is %d bytes, want %d", len(key), masterKeySize)
	}

	return key, nil
}

func generateMasterKey(storeInKeyring bool) ([]byte, error) {
	generatedKeyCacheMu.Lock()
	defer generatedKeyCacheMu.Unlock()

	if generatedKeyCache != nil {
		return generatedKeyCache, nil
	}

	key := make([]byte, masterKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)

	if storeInKeyring {
		if err := keyring.Set(keyringService, keyringMasterKey, encoded); err == nil {
			return key, nil
		}
	}

	generatedKeyCache = key

	fmt.Fprintf(os.Stderr, "\n"+
		"System keyring unavailable. To keep stored keys decryptable across restarts, set:\n"+
		"\n"+
		"  export %s=%s\n"+
		"\n"+
		"If this value is lost, every key sealed under it is unrecoverable.\n"+
		"\n",
		MasterKeyEnv, encoded)

	return key, nil
}
