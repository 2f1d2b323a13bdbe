package flash

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/scrypt"

	"github.com/go-usb/virtualdfu/crypto"
	"github.com/go-usb/virtualdfu/util"
)

// Record is one completed manifestation, appended to the vault's
// upgrade log after every successful DFU_MANIFEST. This is new
// relative to the protocol core, which is explicitly stateless across
// power cycles (§6) — the vault lives only in the application layer.
type Record struct {
	ImageDigest []byte `cbor:"digest"`
	ImageSize   int    `cbor:"size"`
	Vendor      uint16 `cbor:"vendor"`
	Product     uint16 `cbor:"product"`
	Succeeded   bool   `cbor:"ok"`
}

// Vault is an append-only, passphrase-protected upgrade history log.
type Vault struct {
	records []Record
}

func NewVault() *Vault {
	return &Vault{}
}

func (v *Vault) Append(record Record) {
	v.records = append(v.records, record)
}

func (v *Vault) Records() []Record {
	return v.records
}

// encryptedVaultBlob mirrors the passphrase-encrypted envelope pattern:
// an scrypt-derived key-encryption key wraps a random data-encryption
// key, which in turn seals the CBOR-encoded record list under AES-GCM.
type encryptedVaultBlob struct {
	Salt          []byte `cbor:"salt"`
	EncryptionKey []byte `cbor:"encryption_key"`
	KeyNonce      []byte `cbor:"key_nonce"`
	EncryptedData []byte `cbor:"encrypted_data"`
	DataNonce     []byte `cbor:"data_nonce"`
}

const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// Seal encrypts the vault's records under a passphrase-derived key and
// returns a self-contained, CBOR-encoded blob suitable for writing to
// disk.
func (v *Vault) Seal(passphrase string) ([]byte, error) {
	data := util.MarshalCBOR(v.records)

	salt := crypto.RandomBytes(16)
	keyEncryptionKey, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("flash: could not derive key-encryption key: %w", err)
	}

	encryptionKey := crypto.GenerateSymmetricKey()
	encryptedKey, keyNonce, err := crypto.Encrypt(keyEncryptionKey, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("flash: could not wrap vault encryption key: %w", err)
	}

	encryptedData, dataNonce, err := crypto.Encrypt(encryptionKey, data)
	if err != nil {
		return nil, fmt.Errorf("flash: could not encrypt vault: %w", err)
	}

	blob := encryptedVaultBlob{
		Salt:          salt,
		EncryptionKey: encryptedKey,
		KeyNonce:      keyNonce,
		EncryptedData: encryptedData,
		DataNonce:     dataNonce,
	}
	blobBytes, err := cbor.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("flash: could not encode vault blob: %w", err)
	}
	return blobBytes, nil
}

// OpenVault decrypts a blob produced by Seal. A wrong passphrase
// surfaces as an AES-GCM authentication failure, not a panic — this
// reads a file the caller doesn't control, so it is a boundary that
// must return errors rather than trust its input.
func OpenVault(data []byte, passphrase string) (*Vault, error) {
	var blob encryptedVaultBlob
	if err := cbor.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("flash: could not decode vault blob: %w", err)
	}

	keyEncryptionKey, err := scrypt.Key([]byte(passphrase), blob.Salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("flash: could not derive key-encryption key: %w", err)
	}

	encryptionKey, err := crypto.Decrypt(keyEncryptionKey, blob.EncryptionKey, blob.KeyNonce)
	if err != nil {
		return nil, fmt.Errorf("flash: could not unwrap vault encryption key (wrong passphrase?): %w", err)
	}

	data, err = crypto.Decrypt(encryptionKey, blob.EncryptedData, blob.DataNonce)
	if err != nil {
		return nil, fmt.Errorf("flash: could not decrypt vault: %w", err)
	}

	var records []Record
	if err := cbor.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("flash: could not decode vault records: %w", err)
	}
	return &Vault{records: records}, nil
}
