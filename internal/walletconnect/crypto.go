package walletconnect

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	errBadHMAC    = errors.New("inconsistent message hmac")
	errBadPadding = errors.New("invalid payload padding")
)

type encryptedPayload struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func hmacSHA256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}

// encrypt seals plaintext with AES-256-CBC and authenticates ciphertext||iv with HMAC-SHA256.
func encrypt(plaintext, key []byte) (string, error) {
	iv, err := randomBytes(aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	unsigned := append(append([]byte{}, ciphertext...), iv...)
	out, err := json.Marshal(encryptedPayload{
		Data: hex.EncodeToString(ciphertext),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(hmacSHA256(unsigned, key)),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func decrypt(payload string, key []byte) ([]byte, error) {
	var p encryptedPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	iv, err := hex.DecodeString(p.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	unsigned := append(append([]byte{}, ciphertext...), iv...)
	if !hmac.Equal([]byte(hex.EncodeToString(hmacSHA256(unsigned, key))), []byte(p.Hmac)) {
		return nil, errBadHMAC
	}
	if len(iv) != aes.BlockSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errBadPadding
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errBadPadding
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-padding], nil
}
