package keystore

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steampunk99/Hermes/internal/config"
)

func newTestKeystore(t *testing.T, seed byte) *Keystore {
	t.Helper()

	master := make([]byte, 32)
	for i := range master {
		master[i] = seed
	}
	ks, err := New(config.KeystoreConfig{MasterKey: hex.EncodeToString(master)})
	require.NoError(t, err)
	return ks
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	ks := newTestKeystore(t, 0x01)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	encrypted, err := ks.Encrypt(key)
	require.NoError(t, err)
	assert.NotContains(t, encrypted, hex.EncodeToString(crypto.FromECDSA(key)))

	decrypted, err := ks.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, crypto.FromECDSA(key), crypto.FromECDSA(decrypted))
}

func TestDecryptWithWrongMasterKeyFails(t *testing.T) {
	ks := newTestKeystore(t, 0x01)
	other := newTestKeystore(t, 0x02)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	encrypted, err := ks.Encrypt(key)
	require.NoError(t, err)

	_, err = other.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	ks := newTestKeystore(t, 0x01)

	_, err := ks.Decrypt("abcd")
	assert.Error(t, err)
}

func TestNewRejectsBadMasterKey(t *testing.T) {
	_, err := New(config.KeystoreConfig{MasterKey: "deadbeef"})
	assert.Error(t, err)

	_, err = New(config.KeystoreConfig{MasterKey: "not-hex"})
	assert.Error(t, err)
}
