package credentials

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	lserrors "github.com/chmouel/lazystage/internal/errors"
)

// KeyLength is the size of the in-memory encryption key in bytes.
const KeyLength = 16

// ErrCrypto is returned when a cached secret cannot be decrypted.
var ErrCrypto = lserrors.E(lserrors.KindCrypto, "cannot decrypt cached secret")

// secretCipher encrypts secrets with AES-CBC and PKCS#7 padding. The key
// bytes double as the IV, so equal plaintexts produce equal ciphertexts.
type secretCipher struct {
	key []byte
}

func newRandomKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}
	return key, nil
}

func (c *secretCipher) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", lserrors.E(lserrors.Op("credentials.encrypt"), lserrors.KindCrypto, err)
	}

	padded := pkcs7Pad([]byte(plaintext), block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.key[:block.BlockSize()]).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *secretCipher) decrypt(encoded string) (string, error) {
	const op = lserrors.Op("credentials.decrypt")

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", lserrors.E(op, lserrors.KindCrypto, fmt.Errorf("%w: %v", ErrCrypto, err))
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", lserrors.E(op, lserrors.KindCrypto, err)
	}
	size := block.BlockSize()
	if len(data) == 0 || len(data)%size != 0 {
		return "", lserrors.E(op, lserrors.KindCrypto, fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrCrypto))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, c.key[:size]).CryptBlocks(out, data)
	plain, err := pkcs7Unpad(out, size)
	if err != nil {
		return "", lserrors.E(op, lserrors.KindCrypto, err)
	}
	return string(plain), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrCrypto)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrCrypto)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrCrypto)
		}
	}
	return data[:len(data)-n], nil
}
