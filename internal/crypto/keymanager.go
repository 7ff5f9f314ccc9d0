package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
)

// KeyConfig selects how the trading key is supplied. RawPrivateKey wins when
// set; otherwise EncryptedKeyPath + KeyPassword decrypt a key file on disk.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

type encryptedKeyFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// LoadKey resolves a hex private key from the configured source.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		return strings.TrimSpace(cfg.RawPrivateKey), nil
	}
	if cfg.EncryptedKeyPath == "" {
		return "", errors.New("crypto/keymanager: no key source configured")
	}
	if cfg.KeyPassword == "" {
		return "", errors.New("crypto/keymanager: key password required for encrypted key file")
	}

	data, err := os.ReadFile(cfg.EncryptedKeyPath)
	if err != nil {
		return "", fmt.Errorf("crypto/keymanager: reading key file: %w", err)
	}
	return DecryptKey(data, cfg.KeyPassword)
}

// EncryptKey produces an encrypted key file blob (PBKDF2 + AES-256-GCM)
// suitable for writing to disk.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto/keymanager: generating salt: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto/keymanager: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(strings.TrimSpace(privateKeyHex)), nil)

	return json.MarshalIndent(encryptedKeyFile{
		Version:    1,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, "", "  ")
}

// DecryptKey reverses EncryptKey.
func DecryptKey(data []byte, password string) (string, error) {
	var f encryptedKeyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("crypto/keymanager: parsing key file: %w", err)
	}
	if f.Version != 1 {
		return "", fmt.Errorf("crypto/keymanager: unsupported key file version %d", f.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto/keymanager: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(f.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto/keymanager: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(f.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto/keymanager: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.New("crypto/keymanager: decryption failed, wrong password or corrupt file")
	}
	return string(plaintext), nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto/keymanager: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto/keymanager: creating gcm: %w", err)
	}
	return gcm, nil
}
