// Package secure implements the per-connection secure channel used by the
// encrypted variant of BCMP: an ephemeral ECDH key agreement over P-256,
// HKDF-SHA256 key derivation, and AES-256-GCM sealing of subsequent frames.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// PublicKeySize is the length of a compressed P-256 public key as
	// exchanged during the handshake.
	PublicKeySize = 33

	// KeySize is the derived symmetric key length (AES-256).
	KeySize = 32

	// NonceSize is the AEAD nonce length carried in every sealed envelope.
	NonceSize = 12

	// Overhead is the ciphertext expansion added by the AEAD tag.
	Overhead = 16
)

var (
	ErrBadPeerKey = errors.New("malformed peer public key")
	ErrOpenFailed = errors.New("ciphertext authentication failed")
)

// Cipher is the symmetric state installed on a session after a successful
// handshake. A Cipher is safe to copy into independent read and write
// halves; Seal and Open hold no mutable state.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds the AEAD state from a derived 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts a plaintext frame under a freshly generated random nonce.
// A nonce is never reused under the same key: every call draws 12 new bytes
// from crypto/rand.
func (c *Cipher) Seal(plaintext []byte) (nonce, ciphertext []byte, err error) {
	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}
	return nonce, c.aead.Seal(nil, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts a sealed frame. A tag verification
// failure returns ErrOpenFailed and no plaintext.
func (c *Cipher) Open(nonce, ciphertext []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

// Handshake performs the symmetric key exchange over rw and returns the
// derived cipher state. Both endpoints run the identical sequence: write the
// local ephemeral compressed public key, read the peer's, compute the ECDH
// shared secret and expand it with HKDF-SHA256 (empty salt and info) into a
// 256-bit key.
//
// Any transport error propagates as a connection failure. A peer key that
// does not decode as a point on the curve fails with ErrBadPeerKey; the
// connection must be torn down, never downgraded to plaintext.
func Handshake(rw io.ReadWriter) (*Cipher, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	if _, err := rw.Write(compressPublicKey(priv.PublicKey())); err != nil {
		return nil, err
	}

	peerBytes := make([]byte, PublicKeySize)
	if _, err := io.ReadFull(rw, peerBytes); err != nil {
		return nil, err
	}

	peer, err := parseCompressedPublicKey(peerBytes)
	if err != nil {
		return nil, err
	}

	secret, err := priv.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPeerKey, err)
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}

// deriveKey expands an ECDH shared secret into the symmetric key.
func deriveKey(secret []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, nil), key); err != nil {
		return nil, err
	}
	return key, nil
}

// compressPublicKey renders an ecdh public key in the 33-byte compressed
// point format the wire protocol fixes.
func compressPublicKey(pub *ecdh.PublicKey) []byte {
	x, y := elliptic.Unmarshal(elliptic.P256(), pub.Bytes())
	return elliptic.MarshalCompressed(elliptic.P256(), x, y)
}

// parseCompressedPublicKey decodes a 33-byte compressed point.
func parseCompressedPublicKey(data []byte) (*ecdh.PublicKey, error) {
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), data)
	if x == nil {
		return nil, ErrBadPeerKey
	}
	pub, err := ecdh.P256().NewPublicKey(elliptic.Marshal(elliptic.P256(), x, y))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPeerKey, err)
	}
	return pub, nil
}
