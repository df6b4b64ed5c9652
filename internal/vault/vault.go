// Package vault seals wallet secrets under a password using scrypt and
// AES-256-GCM.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Errors
var (
	ErrWrongPassword = errors.New("wrong password")
	ErrEmptyPassword = errors.New("password must not be empty")
	ErrCorrupt       = errors.New("vault data is corrupt")
)

const (
	Version  = 1
	KeyLen   = 32 // AES-256 key length
	saltLen  = 32
	nonceLen = 12
)

// Params are the scrypt cost parameters.
type Params struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// DefaultParams are the interactive-login scrypt costs.
var DefaultParams = Params{N: 32768, R: 8, P: 1}

// Sealed is an encrypted secret. The parameters travel with the ciphertext
// so older vaults still open after DefaultParams change.
type Sealed struct {
	Version int    `json:"version"`
	Params  Params `json:"kdf"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

// Seal encrypts secret under password with DefaultParams.
func Seal(secret []byte, password string) (Sealed, error) {
	return SealWith(secret, password, DefaultParams)
}

// SealWith encrypts secret under password with the given scrypt params.
func SealWith(secret []byte, password string, params Params) (Sealed, error) {
	if password == "" {
		return Sealed{}, ErrEmptyPassword
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return Sealed{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Sealed{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(password, salt, params)
	if err != nil {
		return Sealed{}, err
	}

	return Sealed{
		Version: Version,
		Params:  params,
		Salt:    salt,
		Nonce:   nonce,
		Data:    gcm.Seal(nil, nonce, secret, nil),
	}, nil
}

// Open decrypts a sealed secret. A wrong password and tampered data are
// indistinguishable under GCM, both report ErrWrongPassword.
func Open(s Sealed, password string) ([]byte, error) {
	if s.Version != Version || len(s.Salt) == 0 || len(s.Nonce) != nonceLen {
		return nil, ErrCorrupt
	}
	gcm, err := newGCM(password, s.Salt, s.Params)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, s.Nonce, s.Data, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

// Check reports whether password opens s.
func Check(s Sealed, password string) bool {
	_, err := Open(s, password)
	return err == nil
}

func newGCM(password string, salt []byte, params Params) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(password), salt, params.N, params.R, params.P, KeyLen)
	if err != nil {
		return nil, fmt.Errorf("scrypt key derivation failed: %w", err)
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
