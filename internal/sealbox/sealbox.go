package sealbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the symmetric data key size: AES-256.
	KeySize = 32

	// NonceSize is the AEAD nonce size: 96 bits, the GCM standard.
	NonceSize = 12

	// TagSize is the GCM authentication tag size: 128 bits.
	TagSize = 16

	boxKeySize   = 32
	boxNonceSize = 24
)

// SealedAsset carries a buyer-only-readable copy of an asset. The bulk data
// is AES-256-GCM under a fresh data key; the data key itself is wrapped with
// authenticated public-key encryption addressed to the buyer. Only the
// buyer's private key can unwrap it, so neither the seller, the platform nor
// the storage operator can read the delivered copy.
type SealedAsset struct {
	WrappedKey string `json:"wrapped_key"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	AuthTag    string `json:"auth_tag"`
}

// NewKey generates a random 256-bit symmetric key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKeyPair creates a curve25519 key-exchange keypair, base64 encoded.
// Buyers generate theirs client-side; this helper exists for the seller-side
// tooling and for tests.
func GenerateKeyPair() (publicKey, privateKey string, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(pub[:]), base64.StdEncoding.EncodeToString(priv[:]), nil
}

// Seal encrypts plaintext with AES-256-GCM under key. The returned blob is
// nonce || ciphertext || tag. This is the at-rest construction used for the
// seller's original copy, with a platform-managed key.
func Seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a Seal blob. Any authentication failure means the stored
// blob or the key is corrupt; callers must treat that as fatal.
func Open(data, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize+TagSize {
		return nil, fmt.Errorf("sealed blob too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return plaintext, nil
}

// ReEncryptForBuyer hybrid-encrypts plaintext for the holder of
// buyerPublicKey. A fresh 256-bit data key encrypts the bulk data; the data
// key is sealed to the buyer with a one-time sender keypair, so the wrapped
// payload is senderPub || boxNonce || box(dataKey). The data key is wiped
// before returning.
func ReEncryptForBuyer(plaintext []byte, buyerPublicKey string) (*SealedAsset, error) {
	buyerPub, err := decodeBoxKey(buyerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid buyer public key: %w", err)
	}

	dataKey, err := NewKey()
	if err != nil {
		return nil, err
	}
	defer Zero(dataKey)

	gcm, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	senderPub, senderPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	defer Zero(senderPriv[:])

	var boxNonce [boxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, boxNonce[:]); err != nil {
		return nil, err
	}

	wrapped := make([]byte, 0, boxKeySize+boxNonceSize+len(dataKey)+box.Overhead)
	wrapped = append(wrapped, senderPub[:]...)
	wrapped = append(wrapped, boxNonce[:]...)
	wrapped = box.Seal(wrapped, dataKey, &boxNonce, buyerPub, senderPriv)

	return &SealedAsset{
		WrappedKey: base64.StdEncoding.EncodeToString(wrapped),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// HybridDecrypt is the buyer-side inverse of ReEncryptForBuyer. It lives
// here so the two directions are tested against each other; production
// buyers run the equivalent client-side. Any tampering with the wrapped key,
// ciphertext, nonce or tag fails closed.
func HybridDecrypt(sealed *SealedAsset, buyerPrivateKey string) ([]byte, error) {
	buyerPriv, err := decodeBoxKey(buyerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid buyer private key: %w", err)
	}

	wrapped, err := base64.StdEncoding.DecodeString(sealed.WrappedKey)
	if err != nil {
		return nil, err
	}
	if len(wrapped) < boxKeySize+boxNonceSize+box.Overhead {
		return nil, fmt.Errorf("wrapped key payload too short")
	}

	var senderPub [boxKeySize]byte
	copy(senderPub[:], wrapped[:boxKeySize])
	var boxNonce [boxNonceSize]byte
	copy(boxNonce[:], wrapped[boxKeySize:boxKeySize+boxNonceSize])

	dataKey, ok := box.Open(nil, wrapped[boxKeySize+boxNonceSize:], &boxNonce, &senderPub, buyerPriv)
	if !ok {
		return nil, fmt.Errorf("failed to unwrap data key")
	}
	defer Zero(dataKey)

	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, err
	}
	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil {
		return nil, err
	}
	tag, err := base64.StdEncoding.DecodeString(sealed.AuthTag)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return plaintext, nil
}

// ContentHash returns the hex sha256 of b, used both as the content id for
// the blob store and as the integrity binding recorded in the audit trail.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Zero wipes a sensitive buffer in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func decodeBoxKey(s string) (*[boxKeySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != boxKeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", boxKeySize, len(raw))
	}
	var key [boxKeySize]byte
	copy(key[:], raw)
	return &key, nil
}
