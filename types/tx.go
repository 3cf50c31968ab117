package types

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

const (
	PubKeySize    = ed25519.PubKeySize
	SignatureSize = ed25519.SignatureSize

	// WireOverhead 信封前缀的长度，同时也是gossip层的message id
	WireOverhead = PubKeySize + SignatureSize

	TxKeySize = tmhash.Size
)

var (
	ErrShortMessageID  = errors.New("message id shorter than a public key")
	ErrBadSignatureLen = errors.New("message id carries a malformed signature")
)

// SignedTx 一条已签名的交易，进入mempool后不再修改
// Payload对系统是不透明的字节
type SignedTx struct {
	PubKey    tmbytes.HexBytes `json:"pub_key"`
	Signature tmbytes.HexBytes `json:"signature"`
	Payload   tmbytes.HexBytes `json:"payload"`
}

// NewSignedTx signs a locally authored payload with the node's own key.
// The node cannot run without an identity key, so callers treat an error
// here as fatal.
func NewSignedTx(payload []byte, privKey crypto.PrivKey) (*SignedTx, error) {
	sig, err := privKey.Sign(payload)
	if err != nil {
		return nil, err
	}

	return &SignedTx{
		PubKey:    privKey.PubKey().Bytes(),
		Signature: sig,
		Payload:   payload,
	}, nil
}

// TxFromWire 根据message id和message body重建交易
// message id的前32字节是发送者的公钥，剩下的是签名
// 这里只做边界检查，不验证签名 - 签名验证是validator的工作
func TxFromWire(msgID []byte, body []byte) (*SignedTx, error) {
	if len(msgID) < PubKeySize {
		return nil, ErrShortMessageID
	}
	pub, sig := msgID[:PubKeySize], msgID[PubKeySize:]
	if len(sig) != SignatureSize {
		return nil, ErrBadSignatureLen
	}

	tx := &SignedTx{
		PubKey:    append([]byte{}, pub...),
		Signature: append([]byte{}, sig...),
		Payload:   append([]byte{}, body...),
	}
	return tx, nil
}

// Verify reports whether Signature is a valid signature by PubKey over
// Payload. Pure, no side effects.
func (tx *SignedTx) Verify() bool {
	if len(tx.PubKey) != PubKeySize {
		return false
	}
	pub := ed25519.PubKey(tx.PubKey)
	return pub.VerifySignature(tx.Payload, tx.Signature)
}

// WireBytes 编码成网络格式: pubkey || signature || payload
func (tx *SignedTx) WireBytes() []byte {
	bz := make([]byte, 0, WireOverhead+len(tx.Payload))
	bz = append(bz, tx.PubKey...)
	bz = append(bz, tx.Signature...)
	bz = append(bz, tx.Payload...)
	return bz
}

// MessageID returns the envelope prefix used as the gossip dedup id.
func (tx *SignedTx) MessageID() []byte {
	bz := make([]byte, 0, WireOverhead)
	bz = append(bz, tx.PubKey...)
	bz = append(bz, tx.Signature...)
	return bz
}

func (tx *SignedTx) Hash() []byte {
	return tmhash.Sum(tx.WireBytes())
}

func (tx *SignedTx) ComputeSize() int64 {
	return int64(WireOverhead + len(tx.Payload))
}

func (tx *SignedTx) String() string {
	return fmt.Sprintf("SignedTx{%X %X %q}",
		tmbytes.Fingerprint(tx.PubKey), tmbytes.Fingerprint(tx.Signature), string(tx.Payload))
}

// TxKey is the fixed length array hash used as the key in maps.
func TxKey(tx *SignedTx) [TxKeySize]byte {
	return sha256.Sum256(tx.WireBytes())
}

// ===== tx array =====

type Txs []*SignedTx

// 返回交易形成的merkle tree的根value
func (txs Txs) Hash() []byte {
	txBzs := make([][]byte, len(txs))
	for i := 0; i < len(txs); i++ {
		txBzs[i] = txs[i].Hash()
	}
	return merkle.HashFromByteSlices(txBzs)
}

func (txs Txs) ComputeSize() int64 {
	var dataSize int64

	for _, tx := range txs {
		dataSize += tx.ComputeSize()
	}

	return dataSize
}
