package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/steampunk99/Hermes/internal/config"
)

// Keystore 托管签名密钥的加解密。密钥只在内存中短暂存在，
// 明文和解密后的私钥绝不写日志。
type Keystore struct {
	masterKey []byte
}

// New 创建密钥库，主密钥为hex编码的32字节AES-256密钥
func New(cfg config.KeystoreConfig) (*Keystore, error) {
	key, err := hex.DecodeString(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("主密钥必须为32字节")
	}
	return &Keystore{masterKey: key}, nil
}

// Encrypt 加密私钥，输出 hex(nonce || ciphertext)
func (k *Keystore) Encrypt(privateKey *ecdsa.PrivateKey) (string, error) {
	gcm, err := k.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, crypto.FromECDSA(privateKey), nil)
	return hex.EncodeToString(ciphertext), nil
}

// Decrypt 解密托管私钥
func (k *Keystore) Decrypt(encrypted string) (*ecdsa.PrivateKey, error) {
	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := k.gcm()
	if err != nil {
		return nil, err
	}

	if len(data) < gcm.NonceSize() {
		return nil, errors.New("密文长度不合法")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("托管密钥解密失败")
	}

	key, err := crypto.ToECDSA(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to parse decrypted key: %w", err)
	}
	return key, nil
}

// gcm 构造AES-GCM
func (k *Keystore) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
