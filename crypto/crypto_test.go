package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestEncryptDecrypt(t *testing.T) {
	data := []byte("data")
	key := GenerateSymmetricKey()
	encryptedData, nonce, err := Encrypt(key, data)
	if err != nil {
		t.Fatal(err)
	}
	decryptedData, err := Decrypt(key, encryptedData, nonce)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decryptedData, data) {
		t.Fatalf("'%s' does not match '%s'", string(decryptedData), string(data))
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	data := []byte("data")
	key := GenerateSymmetricKey()
	wrongKey := GenerateSymmetricKey()
	encryptedData, nonce, err := Encrypt(key, data)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(wrongKey, encryptedData, nonce); err == nil {
		t.Fatal("expected decryption under the wrong key to fail")
	}
}

func TestHashSHA256(t *testing.T) {
	data := []byte("test")
	target := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	hash := HashSHA256(data)
	encodedHash := hex.EncodeToString(hash)
	if encodedHash != target {
		t.Fatalf("'%s' does not equal '%s'", encodedHash, target)
	}
}

func TestRandomBytesLength(t *testing.T) {
	b := RandomBytes(32)
	if len(b) != 32 {
		t.Fatalf("expected 32 random bytes, got %d", len(b))
	}
}
