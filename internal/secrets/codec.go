// Package secrets implements the at-rest encryption for refresh tokens and
// the durable store that holds the encrypted records.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/developiq/northstar/internal/domain"
)

// Encrypt encrypts plaintext with AES-256-CBC and returns the record as
// "hex(iv):hex(ciphertext)". The AES key is the SHA-256 digest of the key
// string. A fresh random IV is generated on every call, so encrypting the
// same plaintext twice yields different records.
func Encrypt(plaintext, key string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	keyHash := sha256.Sum256([]byte(key))

	block, err := aes.NewCipher(keyHash[:])
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := padPKCS7([]byte(plaintext), aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(encrypted), nil
}

// Decrypt reverses Encrypt. Any structural problem with the record, and any
// padding failure after decryption, returns a *domain.DecryptionError.
// Padding failure is treated as tampering: no partially-decrypted bytes are
// ever returned.
func Decrypt(record, key string) (string, error) {
	parts := strings.Split(record, ":")
	if len(parts) != 2 {
		return "", &domain.DecryptionError{Reason: "record is not iv:ciphertext"}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", &domain.DecryptionError{Reason: "IV is not valid hex", Err: err}
	}
	if len(iv) != aes.BlockSize {
		return "", &domain.DecryptionError{Reason: fmt.Sprintf("IV is %d bytes, want %d", len(iv), aes.BlockSize)}
	}

	encrypted, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", &domain.DecryptionError{Reason: "ciphertext is not valid hex", Err: err}
	}
	if len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return "", &domain.DecryptionError{Reason: "ciphertext length is not a multiple of the block size"}
	}

	keyHash := sha256.Sum256([]byte(key))

	block, err := aes.NewCipher(keyHash[:])
	if err != nil {
		return "", &domain.DecryptionError{Reason: "invalid key", Err: err}
	}

	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)

	unpadded, err := unpadPKCS7(decrypted, aes.BlockSize)
	if err != nil {
		return "", &domain.DecryptionError{Reason: "padding validation failed", Err: err}
	}

	return string(unpadded), nil
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
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", padding)
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("inconsistent padding bytes")
		}
	}
	return data[:len(data)-padding], nil
}
