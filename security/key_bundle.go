package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"

	"github.com/goliatone/go-accounts/core"
	"golang.org/x/crypto/hkdf"
)

const (
	oldsyncKeyInfo = "identity.mozilla.com/picl/v1/oldsync"
	bundleKeySize  = 32
)

// KeyBundle holds the encryption and HMAC keys used for remote collection
// payloads.
type KeyBundle struct {
	EncKey  []byte
	HMACKey []byte
}

// EncryptedPayload is the wire form of an encrypted record body.
type EncryptedPayload struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"IV"`
	HMAC       string `json:"hmac"`
}

// KeyBundleFromSyncKey derives the bundle from hex sync key material. A
// 64-byte key already is the bundle; shorter keys are expanded with HKDF.
func KeyBundleFromSyncKey(syncKeyHex string) (KeyBundle, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(syncKeyHex))
	if err != nil {
		return KeyBundle{}, core.WrapError(err, core.ErrorInvalidCredentials, "security: sync key is not valid hex")
	}
	if len(raw) < bundleKeySize {
		return KeyBundle{}, core.NewError(core.ErrorInvalidCredentials, "security: sync key is too short")
	}
	if len(raw) != 2*bundleKeySize {
		expanded := make([]byte, 2*bundleKeySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, []byte(oldsyncKeyInfo)), expanded); err != nil {
			return KeyBundle{}, core.WrapError(err, core.ErrorInternal, "security: expand sync key")
		}
		raw = expanded
	}
	return KeyBundle{
		EncKey:  append([]byte(nil), raw[:bundleKeySize]...),
		HMACKey: append([]byte(nil), raw[bundleKeySize:]...),
	}, nil
}

// EncryptJSON marshals value and encrypts it into a payload string.
func (b KeyBundle) EncryptJSON(value any) (string, error) {
	cleartext, err := json.Marshal(value)
	if err != nil {
		return "", core.WrapError(err, core.ErrorInternal, "security: encode record")
	}
	payload, err := b.Encrypt(cleartext)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", core.WrapError(err, core.ErrorInternal, "security: encode payload")
	}
	return string(data), nil
}

// DecryptJSON verifies and decrypts a payload string into target.
func (b KeyBundle) DecryptJSON(payload string, target any) error {
	var parsed EncryptedPayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return core.WrapError(err, core.ErrorServer, "security: record payload is not an encrypted envelope")
	}
	cleartext, err := b.Decrypt(parsed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(cleartext, target); err != nil {
		return core.WrapError(err, core.ErrorServer, "security: decode record")
	}
	return nil
}

func (b KeyBundle) Encrypt(cleartext []byte) (EncryptedPayload, error) {
	if err := b.validate(); err != nil {
		return EncryptedPayload{}, err
	}
	block, err := aes.NewCipher(b.EncKey)
	if err != nil {
		return EncryptedPayload{}, core.WrapError(err, core.ErrorInternal, "security: create cipher")
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return EncryptedPayload{}, core.WrapError(err, core.ErrorInternal, "security: iv generation failed")
	}
	padded := pkcs7Pad(cleartext, aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	ciphertext := base64.StdEncoding.EncodeToString(encrypted)
	return EncryptedPayload{
		Ciphertext: ciphertext,
		IV:         base64.StdEncoding.EncodeToString(iv),
		HMAC:       hex.EncodeToString(b.mac(ciphertext)),
	}, nil
}

func (b KeyBundle) Decrypt(payload EncryptedPayload) ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	expected, err := hex.DecodeString(payload.HMAC)
	if err != nil || !hmac.Equal(expected, b.mac(payload.Ciphertext)) {
		return nil, core.NewError(core.ErrorInvalidCredentials, "security: record hmac mismatch")
	}
	iv, err := base64.StdEncoding.DecodeString(payload.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, core.NewError(core.ErrorServer, "security: record iv is invalid")
	}
	encrypted, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	if err != nil || len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return nil, core.NewError(core.ErrorServer, "security: record ciphertext is invalid")
	}
	block, err := aes.NewCipher(b.EncKey)
	if err != nil {
		return nil, core.WrapError(err, core.ErrorInternal, "security: create cipher")
	}
	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)
	cleartext, err := pkcs7Unpad(decrypted, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return cleartext, nil
}

func (b KeyBundle) validate() error {
	if len(b.EncKey) != bundleKeySize || len(b.HMACKey) != bundleKeySize {
		return core.NewError(core.ErrorInvalidCredentials, "security: key bundle is incomplete")
	}
	return nil
}

// mac authenticates the base64 ciphertext string, not the raw bytes.
func (b KeyBundle) mac(ciphertext string) []byte {
	mac := hmac.New(sha256.New, b.HMACKey)
	mac.Write([]byte(ciphertext))
	return mac.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, core.NewError(core.ErrorServer, "security: record padding is invalid")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, core.NewError(core.ErrorServer, "security: record padding is invalid")
	}
	for _, value := range data[len(data)-padding:] {
		if int(value) != padding {
			return nil, core.NewError(core.ErrorServer, "security: record padding is invalid")
		}
	}
	return data[:len(data)-padding], nil
}
