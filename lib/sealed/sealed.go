// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts values at rest with age. The session store
// uses it to keep the bearer token unreadable in the state database
// when an identity file is configured: the token is sealed to the
// identity's recipient on write and opened with the identity on read.
//
// Ciphertext is returned base64-encoded so it can sit in a TEXT column.
package sealed

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/secret"
)

// Identity is an age X25519 identity whose private half lives in a
// secret.Buffer. Close releases it.
type Identity struct {
	privateKey *secret.Buffer

	// Recipient is the public key (age1...) that values are sealed to.
	Recipient string
}

// Close wipes the private key. Idempotent.
func (i *Identity) Close() error {
	if i.privateKey == nil {
		return nil
	}
	return i.privateKey.Close()
}

// GenerateIdentity creates a fresh identity.
func GenerateIdentity() (*Identity, error) {
	generated, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	privateKey, err := secret.NewFromString(generated.String())
	if err != nil {
		return nil, fmt.Errorf("protecting age identity: %w", err)
	}
	return &Identity{
		privateKey: privateKey,
		Recipient:  generated.Recipient().String(),
	}, nil
}

// LoadOrCreateIdentity reads the identity stored at path, creating one
// (file mode 0600, parent directory 0700) if the file does not exist.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return createIdentityFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading identity %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	parsed, err := age.ParseX25519Identity(string(trimmed))
	if err != nil {
		secret.Zero(data)
		return nil, fmt.Errorf("parsing identity %s: %w", path, err)
	}
	recipient := parsed.Recipient().String()

	privateKey, err := secret.NewFromBytes(trimmed)
	secret.Zero(data)
	if err != nil {
		return nil, fmt.Errorf("protecting identity %s: %w", path, err)
	}
	return &Identity{privateKey: privateKey, Recipient: recipient}, nil
}

func createIdentityFile(path string) (*Identity, error) {
	identity, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		identity.Close()
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}
	contents := make([]byte, 0, identity.privateKey.Len()+1)
	contents = append(contents, identity.privateKey.Bytes()...)
	contents = append(contents, '\n')
	err = os.WriteFile(path, contents, 0o600)
	secret.Zero(contents)
	if err != nil {
		identity.Close()
		return nil, fmt.Errorf("writing identity %s: %w", path, err)
	}
	return identity, nil
}

// Seal encrypts plaintext to recipient and returns base64 ciphertext.
func Seal(plaintext []byte, recipient string) (string, error) {
	parsed, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return "", fmt.Errorf("parsing recipient %q: %w", recipient, err)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, parsed)
	if err != nil {
		return "", fmt.Errorf("starting age encryption: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finishing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Open decrypts base64 ciphertext produced by Seal. The plaintext is
// returned in a secret.Buffer owned by the caller.
func (i *Identity) Open(ciphertext string) (*secret.Buffer, error) {
	parsed, err := age.ParseX25519Identity(i.privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), parsed)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("sealed value is empty")
	}
	return secret.NewFromBytes(plaintext)
}
