// Package keywrap applies the AES Key Wrap algorithm of RFC 3394 to the Key
// Data field of EAPOL-Key frames.
package keywrap

import (
	"crypto/aes"
	"crypto/cipher"

	aeskw "github.com/NickBall/go-aes-key-wrap"

	"github.com/wifibear/rsn/pkg/rsn/rsnerr"
)

const (
	blockLen = 8
	minLen   = 2 * blockLen
)

func newCipher(kek []byte) (cipher.Block, error) {
	switch len(kek) {
	case 16, 24, 32:
	default:
		return nil, rsnerr.New(rsnerr.InvalidKekLength, "%d bytes", len(kek))
	}
	return aes.NewCipher(kek)
}

// Wrap encrypts plaintext under kek. The plaintext must be a multiple of
// 8 bytes and at least 16 bytes long; it is never padded here.
func Wrap(kek, plaintext []byte) ([]byte, error) {
	if len(plaintext) < minLen || len(plaintext)%blockLen != 0 {
		return nil, rsnerr.New(rsnerr.InvalidKeyWrapLength, "%d bytes", len(plaintext))
	}
	block, err := newCipher(kek)
	if err != nil {
		return nil, err
	}
	out, err := aeskw.Wrap(block, plaintext)
	if err != nil {
		return nil, rsnerr.Wrap(rsnerr.InvalidKeyWrapLength, err)
	}
	return out, nil
}

// Unwrap decrypts ciphertext produced by Wrap. If the integrity check fails
// it returns KeyWrapIntegrity and no plaintext.
func Unwrap(kek, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < minLen+blockLen || len(ciphertext)%blockLen != 0 {
		return nil, rsnerr.New(rsnerr.InvalidKeyWrapLength, "%d bytes", len(ciphertext))
	}
	block, err := newCipher(kek)
	if err != nil {
		return nil, err
	}
	// lengths are checked above, so any failure here is the IV check
	out, err := aeskw.Unwrap(block, ciphertext)
	if err != nil {
		clear(out)
		return nil, rsnerr.Wrap(rsnerr.KeyWrapIntegrity, err)
	}
	return out, nil
}
