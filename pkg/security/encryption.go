package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecryption     = errors.New("decryption failed")
)

// Encryptor seals and opens opaque blobs.
type Encryptor interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// sealVersion prefixes every sealed blob so the layout can change later.
const sealVersion byte = 1

type aesEncryptor struct {
	aead cipher.AEAD
}

// NewAESEncryptor returns an AES-GCM encryptor. The key must be 16, 24 or 32 bytes.
// Sealed output is version byte, nonce, then ciphertext.
func NewAESEncryptor(key []byte) (Encryptor, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrEncryption
	}
	return &aesEncryptor{aead: aead}, nil
}

func (a *aesEncryptor) Encrypt(data []byte) ([]byte, error) {
	ns := a.aead.NonceSize()
	out := make([]byte, 1+ns, 1+ns+len(data)+a.aead.Overhead())
	out[0] = sealVersion
	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return nil, ErrEncryption
	}
	// The version byte is authenticated along with the payload.
	return a.aead.Seal(out, out[1:], data, out[:1]), nil
}

func (a *aesEncryptor) Decrypt(data []byte) ([]byte, error) {
	ns := a.aead.NonceSize()
	if len(data) < 1+ns+a.aead.Overhead() || data[0] != sealVersion {
		return nil, ErrDecryption
	}

	plain, err := a.aead.Open(nil, data[1:1+ns], data[1+ns:], data[:1])
	if err != nil {
		return nil, ErrDecryption
	}
	return plain, nil
}

// EncryptToken seals data and returns it as an unpadded base64url string, safe for cookies.
func EncryptToken(enc Encryptor, data []byte) (string, error) {
	sealed, err := enc.Encrypt(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptToken reverses EncryptToken.
func DecryptToken(enc Encryptor, token string) ([]byte, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrDecryption
	}
	return enc.Decrypt(sealed)
}
