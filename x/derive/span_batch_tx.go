package derive

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// ErrUnsupportedTxType is returned for transaction types span batches cannot carry.
var ErrUnsupportedTxType = errors.New("unsupported tx type")

// spanBatchTxData is the part of a transaction not stored in a dedicated
// column: value, fee fields, calldata and access list.
type spanBatchTxData interface {
	txType() byte
	toTx(chainID *big.Int, nonce, gas uint64, to *common.Address, v, r, s *big.Int) *types.Transaction
}

type spanBatchLegacyTxData struct {
	Value    *big.Int
	GasPrice *big.Int
	Data     []byte
}

func (*spanBatchLegacyTxData) txType() byte { return types.LegacyTxType }

func (d *spanBatchLegacyTxData) toTx(_ *big.Int, nonce, gas uint64, to *common.Address, v, r, s *big.Int) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: d.GasPrice,
		Gas:      gas,
		To:       to,
		Value:    d.Value,
		Data:     d.Data,
		V:        v,
		R:        r,
		S:        s,
	})
}

type spanBatchAccessListTxData struct {
	Value      *big.Int
	GasPrice   *big.Int
	Data       []byte
	AccessList types.AccessList
}

func (*spanBatchAccessListTxData) txType() byte { return types.AccessListTxType }

func (d *spanBatchAccessListTxData) toTx(chainID *big.Int, nonce, gas uint64, to *common.Address, v, r, s *big.Int) *types.Transaction {
	return types.NewTx(&types.AccessListTx{
		ChainID:    chainID,
		Nonce:      nonce,
		GasPrice:   d.GasPrice,
		Gas:        gas,
		To:         to,
		Value:      d.Value,
		Data:       d.Data,
		AccessList: d.AccessList,
		V:          v,
		R:          r,
		S:          s,
	})
}

type spanBatchDynamicFeeTxData struct {
	Value      *big.Int
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Data       []byte
	AccessList types.AccessList
}

func (*spanBatchDynamicFeeTxData) txType() byte { return types.DynamicFeeTxType }

func (d *spanBatchDynamicFeeTxData) toTx(chainID *big.Int, nonce, gas uint64, to *common.Address, v, r, s *big.Int) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:    chainID,
		Nonce:      nonce,
		GasTipCap:  d.GasTipCap,
		GasFeeCap:  d.GasFeeCap,
		Gas:        gas,
		To:         to,
		Value:      d.Value,
		Data:       d.Data,
		AccessList: d.AccessList,
		V:          v,
		R:          r,
		S:          s,
	})
}

// spanBatchTxCodec converts one transaction type to and from its payload.
type spanBatchTxCodec struct {
	fromTx func(tx *types.Transaction) spanBatchTxData
	empty  func() spanBatchTxData
}

var spanBatchTxCodecs = map[byte]spanBatchTxCodec{
	types.LegacyTxType: {
		fromTx: func(tx *types.Transaction) spanBatchTxData {
			return &spanBatchLegacyTxData{
				Value:    tx.Value(),
				GasPrice: tx.GasPrice(),
				Data:     tx.Data(),
			}
		},
		empty: func() spanBatchTxData { return new(spanBatchLegacyTxData) },
	},
	types.AccessListTxType: {
		fromTx: func(tx *types.Transaction) spanBatchTxData {
			return &spanBatchAccessListTxData{
				Value:      tx.Value(),
				GasPrice:   tx.GasPrice(),
				Data:       tx.Data(),
				AccessList: tx.AccessList(),
			}
		},
		empty: func() spanBatchTxData { return new(spanBatchAccessListTxData) },
	},
	types.DynamicFeeTxType: {
		fromTx: func(tx *types.Transaction) spanBatchTxData {
			return &spanBatchDynamicFeeTxData{
				Value:      tx.Value(),
				GasTipCap:  tx.GasTipCap(),
				GasFeeCap:  tx.GasFeeCap(),
				Data:       tx.Data(),
				AccessList: tx.AccessList(),
			}
		},
		empty: func() spanBatchTxData { return new(spanBatchDynamicFeeTxData) },
	},
}

func isTypedTx(txType byte) bool {
	_, ok := spanBatchTxCodecs[txType]
	return ok && txType != types.LegacyTxType
}

// marshalSpanBatchTxData encodes the payload of tx. Legacy payloads are a
// bare RLP list, typed payloads are prefixed with the type byte.
func marshalSpanBatchTxData(tx *types.Transaction) ([]byte, error) {
	codec, ok := spanBatchTxCodecs[tx.Type()]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedTxType, tx.Type())
	}
	var buf bytes.Buffer
	if tx.Type() != types.LegacyTxType {
		buf.WriteByte(tx.Type())
	}
	if err := rlp.Encode(&buf, codec.fromTx(tx)); err != nil {
		return nil, fmt.Errorf("failed to encode tx payload: %w", err)
	}
	return buf.Bytes(), nil
}

func unmarshalSpanBatchTxData(b []byte) (spanBatchTxData, error) {
	if len(b) == 0 {
		return nil, newDecodingError("tx payload is empty")
	}
	txType := byte(types.LegacyTxType)
	payload := b
	if b[0] <= 0x7f {
		txType, payload = b[0], b[1:]
		if !isTypedTx(txType) {
			return nil, newDecodingError("unsupported tx type %d", txType).WithCause(ErrUnsupportedTxType)
		}
	}
	data := spanBatchTxCodecs[txType].empty()
	if err := rlp.DecodeBytes(payload, data); err != nil {
		return nil, newDecodingError("invalid tx payload of type %d", txType).WithCause(err)
	}
	return data, nil
}
