// Package sso decrypts marketplace SSO session payloads. The CRM encrypts
// the session with CryptoJS AES.encrypt, which produces the OpenSSL salted
// format: base64("Salted__" + 8-byte salt + ciphertext) with a key derived
// from the shared secret via the MD5-based EVP_BytesToKey scheme.
package sso

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const saltedPrefix = "Salted__"

// Decryptor decrypts SSO session payloads with a shared key.
type Decryptor struct {
	key string
}

// NewDecryptor creates a Decryptor for the given shared SSO key.
func NewDecryptor(key string) (*Decryptor, error) {
	if key == "" {
		return nil, fmt.Errorf("sso key is required")
	}
	return &Decryptor{key: key}, nil
}

// Decrypt decodes and decrypts a base64 SSO payload, returning the
// plaintext JSON bytes.
func (d *Decryptor) Decrypt(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid sso payload encoding: %w", err)
	}
	if len(raw) < len(saltedPrefix)+8 || string(raw[:len(saltedPrefix)]) != saltedPrefix {
		return nil, fmt.Errorf("invalid sso payload format")
	}

	salt := raw[len(saltedPrefix) : len(saltedPrefix)+8]
	ciphertext := raw[len(saltedPrefix)+8:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("invalid sso ciphertext length: %d", len(ciphertext))
	}

	key, iv := deriveKeyIV([]byte(d.key), salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = stripPadding(plaintext)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// DecryptSession decrypts a payload and unmarshals it into v.
func (d *Decryptor) DecryptSession(payload string, v interface{}) error {
	plaintext, err := d.Decrypt(payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("invalid sso session payload: %w", err)
	}
	return nil
}

// Encrypt produces a payload in the same salted format. Used by tests and
// local tooling; the CRM side does the encryption in production.
func (d *Decryptor) Encrypt(plaintext []byte) (string, error) {
	salt := make([]byte, 8)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, iv := deriveKeyIV([]byte(d.key), salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := addPadding(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, len(saltedPrefix)+8+len(ciphertext))
	out = append(out, saltedPrefix...)
	out = append(out, salt...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// deriveKeyIV derives a 32-byte AES key and 16-byte IV from the passphrase
// and salt using repeated MD5 rounds (OpenSSL EVP_BytesToKey with MD5 and
// one iteration, the scheme CryptoJS uses).
func deriveKeyIV(passphrase, salt []byte) (key, iv []byte) {
	var derived []byte
	var prev []byte
	for len(derived) < 48 {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:32], derived[32:48]
}

// stripPadding removes PKCS#7 padding.
func stripPadding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	pad := data[len(data)-n:]
	if !bytes.Equal(pad, bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, fmt.Errorf("invalid padding")
	}
	return data[:len(data)-n], nil
}

// addPadding applies PKCS#7 padding.
func addPadding(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}
