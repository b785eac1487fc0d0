package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"

	"github.com/hyphalmesh/substrate/internal/core"
)

// PBKDF2Iterations is the minimum iteration count required by spec.md §4.5.
const PBKDF2Iterations = 210_000

const (
	saltSize  = 16
	keySize   = 32 // AES-256
	nonceSize = 12 // GCM standard nonce
)

// SealedContent is the at-rest form of a memory payload whose sensitivity
// requires envelope encryption (sensitivity >= confidential).
type SealedContent struct {
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

// Marshal flattens a SealedContent into the single opaque blob a
// content/BYTEA column stores, as salt || nonce || ciphertext. Salt and
// nonce are both fixed-size, so UnmarshalSealed can split them back out
// unambiguously.
func (s SealedContent) Marshal() []byte {
	out := make([]byte, 0, saltSize+nonceSize+len(s.Ciphertext))
	out = append(out, s.Salt...)
	out = append(out, s.Nonce...)
	out = append(out, s.Ciphertext...)
	return out
}

// UnmarshalSealed reverses Marshal.
func UnmarshalSealed(blob []byte) (SealedContent, error) {
	if len(blob) < saltSize+nonceSize {
		return SealedContent{}, core.New(core.CodeInvalidArgument, "sealed content too short")
	}
	return SealedContent{
		Salt:       blob[:saltSize],
		Nonce:      blob[saltSize : saltSize+nonceSize],
		Ciphertext: blob[saltSize+nonceSize:],
	}, nil
}

// Seal derives a fresh per-row content key from masterSecret + a fresh
// random salt via PBKDF2, then encrypts plaintext with AES-256-GCM under a
// fresh nonce. masterSecret is the tenant master secret fetched from the
// external key service; it never touches disk directly.
func Seal(masterSecret []byte, plaintext []byte) (SealedContent, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return SealedContent{}, core.Wrap(core.CodeInternal, err, "generate envelope salt")
	}

	key := deriveKey(masterSecret, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return SealedContent{}, core.Wrap(core.CodeInternal, err, "init aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return SealedContent{}, core.Wrap(core.CodeInternal, err, "init gcm")
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return SealedContent{}, core.Wrap(core.CodeInternal, err, "generate nonce")
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return SealedContent{Salt: salt, Nonce: nonce, Ciphertext: ciphertext}, nil
}

// Open reverses Seal, returning the plaintext or an AuthenticationFailed
// error if the ciphertext was tampered with or masterSecret is wrong.
func Open(masterSecret []byte, sealed SealedContent) ([]byte, error) {
	key := deriveKey(masterSecret, sealed.Salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, core.Wrap(core.CodeInternal, err, "init aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, core.Wrap(core.CodeInternal, err, "init gcm")
	}

	plaintext, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return nil, core.Wrap(core.CodeInvalidArgument, err, "open sealed content: authentication failed")
	}
	return plaintext, nil
}

func deriveKey(masterSecret, salt []byte) []byte {
	return pbkdf2.Key(masterSecret, salt, PBKDF2Iterations, keySize, sha256.New)
}
