package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
)

func TestSignVerify(t *testing.T) {
	priv := ed25519.GenPrivKey()
	tx, err := NewSignedTx([]byte("pay alice 10"), priv)
	require.NoError(t, err)

	assert.Equal(t, PubKeySize, len(tx.PubKey))
	assert.Equal(t, SignatureSize, len(tx.Signature))
	assert.True(t, tx.Verify(), "freshly signed tx must verify")
}

// 对payload或签名的任意一个bit翻转后，Verify都必须失败
func TestVerifyRejectsMutation(t *testing.T) {
	priv := ed25519.GenPrivKey()
	tx, err := NewSignedTx([]byte("pay bob 7"), priv)
	require.NoError(t, err)

	for i := 0; i < len(tx.Payload); i++ {
		mutated := *tx
		mutated.Payload = append([]byte{}, tx.Payload...)
		mutated.Payload[i] ^= 0x01
		assert.False(t, mutated.Verify(), "bit flip in payload byte %d not detected", i)
	}

	for i := 0; i < len(tx.Signature); i++ {
		mutated := *tx
		mutated.Signature = append([]byte{}, tx.Signature...)
		mutated.Signature[i] ^= 0x01
		assert.False(t, mutated.Verify(), "bit flip in signature byte %d not detected", i)
	}
}

func TestWireRoundtrip(t *testing.T) {
	priv := ed25519.GenPrivKey()
	tx, err := NewSignedTx([]byte("hello"), priv)
	require.NoError(t, err)

	wire := tx.WireBytes()
	require.Equal(t, WireOverhead+len(tx.Payload), len(wire))

	decoded, err := TxFromWire(wire[:WireOverhead], wire[WireOverhead:])
	require.NoError(t, err)
	assert.Equal(t, tx.PubKey, decoded.PubKey)
	assert.Equal(t, tx.Signature, decoded.Signature)
	assert.Equal(t, tx.Payload, decoded.Payload)
	assert.True(t, decoded.Verify())
}

func TestTxFromWireRejectsMalformedID(t *testing.T) {
	tests := []struct {
		name  string
		msgID []byte
		err   error
	}{
		{"empty", []byte{}, ErrShortMessageID},
		{"shorter than pubkey", make([]byte, PubKeySize-1), ErrShortMessageID},
		{"pubkey only, no signature", make([]byte, PubKeySize), ErrBadSignatureLen},
		{"truncated signature", make([]byte, PubKeySize+SignatureSize-1), ErrBadSignatureLen},
		{"oversized signature", make([]byte, PubKeySize+SignatureSize+1), ErrBadSignatureLen},
	}

	for _, tc := range tests {
		_, err := TxFromWire(tc.msgID, []byte("body"))
		assert.Equal(t, tc.err, err, tc.name)
	}
}

func TestTxKeyDistinct(t *testing.T) {
	priv := ed25519.GenPrivKey()
	tx1, _ := NewSignedTx([]byte("a"), priv)
	tx2, _ := NewSignedTx([]byte("b"), priv)

	assert.NotEqual(t, TxKey(tx1), TxKey(tx2))
	assert.Equal(t, TxKey(tx1), TxKey(tx1))
}

func TestTxsHash(t *testing.T) {
	priv := ed25519.GenPrivKey()
	txs := Txs{}
	for i := 0; i < 3; i++ {
		tx, err := NewSignedTx([]byte{byte(i)}, priv)
		require.NoError(t, err)
		txs = append(txs, tx)
	}

	root := txs.Hash()
	assert.NotEmpty(t, root)

	// 顺序不同 merkle root也要不同
	reordered := Txs{txs[1], txs[0], txs[2]}
	assert.NotEqual(t, root, reordered.Hash())
}
