package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/go-usb/virtualdfu/util"
)

func GenerateSymmetricKey() []byte {
	return RandomBytes(32)
}

func Encrypt(key []byte, data []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create cipher: %w", err)
	}
	nonce := RandomBytes(12)
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create GCM mode: %w", err)
	}
	encryptedData := gcm.Seal(nil, nonce, data, nil)
	return encryptedData, nonce, nil
}

func Decrypt(key []byte, data []byte, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("could not create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("could not create GCM mode: %w", err)
	}
	decryptedData, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt data: %w", err)
	}
	return decryptedData, nil
}

func HashSHA256(data []byte) []byte {
	hash := sha256.New()
	_, err := hash.Write(data)
	util.CheckErr(err, "Could not hash bytes")
	return hash.Sum(nil)
}

func RandomBytes(length int) []byte {
	randBytes := make([]byte, length)
	_, err := rand.Read(randBytes)
	util.CheckErr(err, "Could not generate random bytes")
	return randBytes
}
