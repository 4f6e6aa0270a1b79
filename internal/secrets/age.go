package secrets

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// AgeEncryptor encrypts and decrypts byte blobs with an X25519 age
// identity. Webhook signing secrets and integration OAuth tokens are
// stored through it so the database never holds them in the clear.
type AgeEncryptor struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewFromKeyFile loads an age identity from path, creating and
// persisting a fresh one if the file does not exist. The key file is
// written with mode 0600.
func NewFromKeyFile(path string) (*AgeEncryptor, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return generateKeyFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: read key file: %w", err)
	}

	keyStr := strings.TrimSpace(string(data))
	identity, err := age.ParseX25519Identity(keyStr)
	if err != nil {
		return nil, fmt.Errorf("secrets: parse key file %s: %w", path, err)
	}
	return &AgeEncryptor{identity: identity, recipient: identity.Recipient()}, nil
}

// NewEphemeral creates an encryptor with a throwaway identity. Data
// encrypted with it is unrecoverable after process exit; meant for
// tests and local experiments.
func NewEphemeral() (*AgeEncryptor, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("secrets: generate identity: %w", err)
	}
	return &AgeEncryptor{identity: identity, recipient: identity.Recipient()}, nil
}

// Encrypt seals plaintext to the encryptor's recipient.
func (e *AgeEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, e.recipient)
	if err != nil {
		return nil, fmt.Errorf("secrets: encrypt: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("secrets: encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("secrets: encrypt: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt opens a blob previously produced by Encrypt.
func (e *AgeEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), e.identity)
	if err != nil {
		return nil, fmt.Errorf("secrets: decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("secrets: decrypt: %w", err)
	}
	return plaintext, nil
}

func generateKeyFile(path string) (*AgeEncryptor, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("secrets: generate identity: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("secrets: create key dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("secrets: write key file: %w", err)
	}
	return &AgeEncryptor{identity: identity, recipient: identity.Recipient()}, nil
}
