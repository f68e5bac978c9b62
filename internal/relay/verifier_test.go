package relay

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDomain() Domain {
	return Domain{
		Name:              "HermesForwarder",
		Version:           "1",
		ChainId:           31337,
		VerifyingContract: common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
}

func testRequest(from common.Address) *ForwardRequest {
	return &ForwardRequest{
		From:       from,
		To:         common.HexToAddress("0x4444444444444444444444444444444444444444"),
		Value:      big.NewInt(0),
		Gas:        big.NewInt(300000),
		Nonce:      big.NewInt(7),
		Data:       []byte{0xa9, 0x05, 0x9c, 0xbb},
		ValidUntil: big.NewInt(1900000000),
	}
}

func TestSignAndRecoverRoundtrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	domain := testDomain()
	req := testRequest(from)

	sig, err := Sign(req, domain, key)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	v := NewVerifier(domain)
	signer, err := v.Recover(req, sig)
	require.NoError(t, err)
	assert.Equal(t, from, signer)

	assert.NoError(t, v.Verify(req, sig))
}

func TestVerifyRejectsTamperedFields(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	domain := testDomain()
	req := testRequest(from)

	sig, err := Sign(req, domain, key)
	require.NoError(t, err)

	v := NewVerifier(domain)

	// 任何字段被改动，恢复出的签名者都不再是from
	tampered := testRequest(from)
	tampered.Nonce = big.NewInt(8)
	assert.ErrorIs(t, v.Verify(tampered, sig), ErrSignatureMismatch)

	tampered = testRequest(from)
	tampered.To = common.HexToAddress("0x5555555555555555555555555555555555555555")
	assert.ErrorIs(t, v.Verify(tampered, sig), ErrSignatureMismatch)

	tampered = testRequest(from)
	tampered.Data = []byte{0xde, 0xad}
	assert.ErrorIs(t, v.Verify(tampered, sig), ErrSignatureMismatch)
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	domain := testDomain()
	req := testRequest(crypto.PubkeyToAddress(key.PublicKey))

	// 他人的私钥签出的请求必须被拒绝
	sig, err := Sign(req, domain, other)
	require.NoError(t, err)

	assert.ErrorIs(t, NewVerifier(domain).Verify(req, sig), ErrSignatureMismatch)
}

func TestRecoverRejectsMalformedSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	req := testRequest(crypto.PubkeyToAddress(key.PublicKey))

	_, err = NewVerifier(testDomain()).Recover(req, []byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestVerifyRejectsWrongDomain(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	req := testRequest(from)

	sig, err := Sign(req, testDomain(), key)
	require.NoError(t, err)

	// 另一条链的签名域不能复用同一签名
	otherDomain := testDomain()
	otherDomain.ChainId = 1
	assert.ErrorIs(t, NewVerifier(otherDomain).Verify(req, sig), ErrSignatureMismatch)
}
