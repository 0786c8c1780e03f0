package derive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

type spanBatchSignature struct {
	r uint256.Int
	s uint256.Int
}

// SpanBatchTxs holds every transaction of a span batch in columns.
//
//	txs = contract_creation_bits ++ y_parity_bits ++ tx_sigs ++ tx_tos ++ tx_datas ++
//	      tx_nonces ++ tx_gases ++ protected_bits ++ queue_origin_bits ++
//	      seq_y_parity_bits ++ tx_seq_sigs ++ l1_tx_origins
//
// No column stores its own length. totalBlockTxCount sizes every per-tx
// column, legacyTxCount (counted while reading tx_datas) sizes protected_bits,
// the zero bits of contract_creation_bits size tx_tos and the set bits of
// queue_origin_bits size l1_tx_origins.
type SpanBatchTxs struct {
	totalBlockTxCount uint64

	contractCreationBits *big.Int
	yParityBits          *big.Int
	txSigs               []spanBatchSignature
	txTos                []common.Address
	txDatas              [][]byte
	txNonces             []uint64
	txGases              []uint64
	protectedBits        *big.Int
	queueOriginBits      *big.Int
	seqYParityBits       *big.Int
	txSeqSigs            []spanBatchSignature
	l1TxOrigins          []common.Address

	// derived
	txTypes       []byte
	legacyTxCount uint64
}

func newSpanBatchTxs() *SpanBatchTxs {
	return &SpanBatchTxs{
		contractCreationBits: new(big.Int),
		yParityBits:          new(big.Int),
		protectedBits:        new(big.Int),
		queueOriginBits:      new(big.Int),
		seqYParityBits:       new(big.Int),
	}
}

// TxCount is the number of transactions across all blocks.
func (btx *SpanBatchTxs) TxCount() uint64 {
	return btx.totalBlockTxCount
}

// AddTxs appends transactions to the columns. chainID must match every
// protected transaction. Either all of txs are added or none are.
func (btx *SpanBatchTxs) AddTxs(txs []*Transaction, chainID *big.Int) error {
	prepared := make([]preparedTx, 0, len(txs))
	for i, rtx := range txs {
		p, err := prepareTx(rtx, chainID)
		if err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
		prepared = append(prepared, p)
	}
	for _, p := range prepared {
		btx.addTx(p)
	}
	return nil
}

type preparedTx struct {
	rtx     *Transaction
	txData  []byte
	yParity uint64
}

func prepareTx(rtx *Transaction, chainID *big.Int) (preparedTx, error) {
	if rtx == nil || rtx.Tx == nil {
		return preparedTx{}, errors.New("nil transaction")
	}
	if chainID == nil {
		return preparedTx{}, ErrMissingChainID
	}
	tx := rtx.Tx
	if tx.Protected() && tx.ChainId().Cmp(chainID) != 0 {
		return preparedTx{}, fmt.Errorf("protected tx has chain ID %d, but expected chain ID %d", tx.ChainId(), chainID)
	}
	if rtx.QueueOrigin > QueueOriginL1ToL2 {
		return preparedTx{}, fmt.Errorf("invalid queue origin %d", rtx.QueueOrigin)
	}
	if rtx.SeqSig.V > 1 {
		return preparedTx{}, fmt.Errorf("invalid sequencer y-parity %d", rtx.SeqSig.V)
	}
	txData, err := marshalSpanBatchTxData(tx)
	if err != nil {
		return preparedTx{}, err
	}
	yParity, err := txYParity(tx, chainID)
	if err != nil {
		return preparedTx{}, err
	}
	return preparedTx{rtx: rtx, txData: txData, yParity: yParity}, nil
}

func (btx *SpanBatchTxs) addTx(p preparedTx) {
	rtx, tx := p.rtx, p.rtx.Tx
	idx := int(btx.totalBlockTxCount)
	if tx.Type() == types.LegacyTxType {
		if tx.Protected() {
			btx.protectedBits.SetBit(btx.protectedBits, int(btx.legacyTxCount), 1)
		}
		btx.legacyTxCount++
	}
	if tx.To() == nil {
		btx.contractCreationBits.SetBit(btx.contractCreationBits, idx, 1)
	} else {
		btx.txTos = append(btx.txTos, *tx.To())
	}
	btx.yParityBits.SetBit(btx.yParityBits, idx, uint(p.yParity))

	_, r, s := tx.RawSignatureValues()
	var sig spanBatchSignature
	sig.r.SetFromBig(r)
	sig.s.SetFromBig(s)
	btx.txSigs = append(btx.txSigs, sig)

	btx.txDatas = append(btx.txDatas, p.txData)
	btx.txTypes = append(btx.txTypes, tx.Type())
	btx.txNonces = append(btx.txNonces, tx.Nonce())
	btx.txGases = append(btx.txGases, tx.Gas())

	if rtx.IsEnqueue() {
		btx.queueOriginBits.SetBit(btx.queueOriginBits, idx, 1)
		btx.l1TxOrigins = append(btx.l1TxOrigins, rtx.L1TxOrigin)
	}
	btx.seqYParityBits.SetBit(btx.seqYParityBits, idx, uint(rtx.SeqSig.V))
	btx.txSeqSigs = append(btx.txSeqSigs, spanBatchSignature{r: rtx.SeqSig.R, s: rtx.SeqSig.S})

	btx.totalBlockTxCount++
}

var (
	big2  = big.NewInt(2)
	big27 = big.NewInt(27)
	big35 = big.NewInt(35)
)

// txYParity extracts the y-parity bit from a transaction's v.
func txYParity(tx *types.Transaction, chainID *big.Int) (uint64, error) {
	v, r, s := tx.RawSignatureValues()
	if tx.Type() != types.LegacyTxType {
		if !v.IsUint64() || v.Uint64() > 1 {
			return 0, fmt.Errorf("invalid y-parity %d for tx type %d", v, tx.Type())
		}
		return v.Uint64(), nil
	}
	if tx.Protected() {
		// v = chainID*2 + 35 + parity
		p := new(big.Int).Mul(chainID, big2)
		p.Add(p, big35)
		p.Sub(v, p)
		if !p.IsUint64() || p.Uint64() > 1 {
			return 0, fmt.Errorf("invalid EIP-155 v %d for chain ID %d", v, chainID)
		}
		return p.Uint64(), nil
	}
	switch {
	case v.Sign() == 0 && r.Sign() == 0 && s.Sign() == 0:
		// unsigned
		return 0, nil
	case v.Cmp(big27) == 0:
		return 0, nil
	case v.Cmp(big.NewInt(28)) == 0:
		return 1, nil
	default:
		return 0, fmt.Errorf("invalid legacy v %d", v)
	}
}

// recoverV is the inverse of txYParity.
func recoverV(txType byte, protected bool, yParity uint, chainID *big.Int, r, s *big.Int) *big.Int {
	parity := big.NewInt(int64(yParity))
	switch {
	case txType != types.LegacyTxType:
		return parity
	case protected:
		v := new(big.Int).Mul(chainID, big2)
		v.Add(v, big35)
		return v.Add(v, parity)
	case yParity == 0 && r.Sign() == 0 && s.Sign() == 0:
		return new(big.Int)
	default:
		return parity.Add(parity, big27)
	}
}

// Encode writes the columns in wire order.
func (btx *SpanBatchTxs) Encode(w io.Writer) error {
	if err := encodeSpanBatchBits(w, btx.totalBlockTxCount, btx.contractCreationBits); err != nil {
		return fmt.Errorf("failed to write contract creation bits: %w", err)
	}
	if err := encodeSpanBatchBits(w, btx.totalBlockTxCount, btx.yParityBits); err != nil {
		return fmt.Errorf("failed to write y-parity bits: %w", err)
	}
	if err := writeSignatures(w, btx.txSigs); err != nil {
		return fmt.Errorf("failed to write tx sigs: %w", err)
	}
	for _, to := range btx.txTos {
		if _, err := w.Write(to.Bytes()); err != nil {
			return fmt.Errorf("failed to write tx tos: %w", err)
		}
	}
	for _, data := range btx.txDatas {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write tx datas: %w", err)
		}
	}
	if err := writeUvarints(w, btx.txNonces); err != nil {
		return fmt.Errorf("failed to write tx nonces: %w", err)
	}
	if err := writeUvarints(w, btx.txGases); err != nil {
		return fmt.Errorf("failed to write tx gases: %w", err)
	}
	if err := encodeSpanBatchBits(w, btx.legacyTxCount, btx.protectedBits); err != nil {
		return fmt.Errorf("failed to write protected bits: %w", err)
	}
	if err := encodeSpanBatchBits(w, btx.totalBlockTxCount, btx.queueOriginBits); err != nil {
		return fmt.Errorf("failed to write queue origin bits: %w", err)
	}
	if err := encodeSpanBatchBits(w, btx.totalBlockTxCount, btx.seqYParityBits); err != nil {
		return fmt.Errorf("failed to write sequencer y-parity bits: %w", err)
	}
	if err := writeSignatures(w, btx.txSeqSigs); err != nil {
		return fmt.Errorf("failed to write sequencer sigs: %w", err)
	}
	for _, origin := range btx.l1TxOrigins {
		if _, err := w.Write(origin.Bytes()); err != nil {
			return fmt.Errorf("failed to write l1 tx origins: %w", err)
		}
	}
	return nil
}

// Decode reads the columns of totalBlockTxCount transactions.
func (btx *SpanBatchTxs) Decode(r *bytes.Reader, totalBlockTxCount uint64) error {
	if totalBlockTxCount > MaxSpanBatchElementCount {
		return newSizeLimitError("tx count %d exceeds %d", totalBlockTxCount, MaxSpanBatchElementCount)
	}
	*btx = *newSpanBatchTxs()
	btx.totalBlockTxCount = totalBlockTxCount

	var err error
	if btx.contractCreationBits, err = decodeSpanBatchBits(r, totalBlockTxCount); err != nil {
		return fmt.Errorf("contract creation bits: %w", err)
	}
	if btx.yParityBits, err = decodeSpanBatchBits(r, totalBlockTxCount); err != nil {
		return fmt.Errorf("y-parity bits: %w", err)
	}
	if btx.txSigs, err = readSignatures(r, totalBlockTxCount); err != nil {
		return fmt.Errorf("tx sigs: %w", err)
	}
	if btx.txTos, err = readAddresses(r, totalBlockTxCount-popCount(btx.contractCreationBits)); err != nil {
		return fmt.Errorf("tx tos: %w", err)
	}
	if err = btx.decodeTxDatas(r); err != nil {
		return err
	}
	if btx.txNonces, err = readUvarints(r, totalBlockTxCount); err != nil {
		return fmt.Errorf("tx nonces: %w", err)
	}
	if btx.txGases, err = readUvarints(r, totalBlockTxCount); err != nil {
		return fmt.Errorf("tx gases: %w", err)
	}
	if btx.protectedBits, err = decodeSpanBatchBits(r, btx.legacyTxCount); err != nil {
		return fmt.Errorf("protected bits: %w", err)
	}
	if btx.queueOriginBits, err = decodeSpanBatchBits(r, totalBlockTxCount); err != nil {
		return fmt.Errorf("queue origin bits: %w", err)
	}
	if btx.seqYParityBits, err = decodeSpanBatchBits(r, totalBlockTxCount); err != nil {
		return fmt.Errorf("sequencer y-parity bits: %w", err)
	}
	if btx.txSeqSigs, err = readSignatures(r, totalBlockTxCount); err != nil {
		return fmt.Errorf("sequencer sigs: %w", err)
	}
	if btx.l1TxOrigins, err = readAddresses(r, popCount(btx.queueOriginBits)); err != nil {
		return fmt.Errorf("l1 tx origins: %w", err)
	}
	return nil
}

func (btx *SpanBatchTxs) decodeTxDatas(r *bytes.Reader) error {
	btx.txDatas = make([][]byte, 0, btx.totalBlockTxCount)
	btx.txTypes = make([]byte, 0, btx.totalBlockTxCount)
	for i := uint64(0); i < btx.totalBlockTxCount; i++ {
		data, txType, err := readTxData(r)
		if err != nil {
			return fmt.Errorf("tx data %d: %w", i, err)
		}
		if txType == types.LegacyTxType {
			btx.legacyTxCount++
		}
		btx.txDatas = append(btx.txDatas, data)
		btx.txTypes = append(btx.txTypes, txType)
	}
	return nil
}

// readTxData reads one type-tagged RLP payload without consuming past it.
func readTxData(r *bytes.Reader) ([]byte, byte, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, 0, newDecodingError("failed to read tx initial byte").WithCause(eofAsUnexpected(err))
	}
	var out []byte
	txType := byte(types.LegacyTxType)
	if first <= 0x7f {
		txType = first
		if !isTypedTx(txType) {
			return nil, 0, newDecodingError("unsupported tx type %d", txType).WithCause(ErrUnsupportedTxType)
		}
		out = append(out, txType)
	} else if err := r.UnreadByte(); err != nil {
		return nil, 0, err
	}

	s := rlp.NewStream(r, MaxSpanBatchElementCount)
	kind, _, err := s.Kind()
	if err != nil {
		return nil, 0, newDecodingError("failed to read tx payload").WithCause(err)
	}
	if kind != rlp.List {
		return nil, 0, newDecodingError("tx payload is not an RLP list")
	}
	payload, err := s.Raw()
	if err != nil {
		return nil, 0, newDecodingError("failed to read tx payload").WithCause(err)
	}
	return append(out, payload...), txType, nil
}

// FullTxs rebuilds the transactions, recovering signature v from the parity
// and protected bits.
func (btx *SpanBatchTxs) FullTxs(chainID *big.Int) ([]*Transaction, error) {
	if chainID == nil {
		return nil, ErrMissingChainID
	}
	txs := make([]*Transaction, 0, btx.totalBlockTxCount)
	var toIdx, legacyIdx, enqueueIdx int
	for idx := 0; idx < int(btx.totalBlockTxCount); idx++ {
		data, err := unmarshalSpanBatchTxData(btx.txDatas[idx])
		if err != nil {
			return nil, err
		}
		var to *common.Address
		if btx.contractCreationBits.Bit(idx) == 0 {
			if toIdx >= len(btx.txTos) {
				return nil, newDecodingError("tx to not enough")
			}
			addr := btx.txTos[toIdx]
			to = &addr
			toIdx++
		}
		protected := false
		if data.txType() == types.LegacyTxType {
			protected = btx.protectedBits.Bit(legacyIdx) == 1
			legacyIdx++
		}
		r := btx.txSigs[idx].r.ToBig()
		s := btx.txSigs[idx].s.ToBig()
		v := recoverV(data.txType(), protected, btx.yParityBits.Bit(idx), chainID, r, s)

		rtx := &Transaction{
			Tx: data.toTx(chainID, btx.txNonces[idx], btx.txGases[idx], to, v, r, s),
			SeqSig: SeqSignature{
				V: uint64(btx.seqYParityBits.Bit(idx)),
				R: btx.txSeqSigs[idx].r,
				S: btx.txSeqSigs[idx].s,
			},
		}
		if btx.queueOriginBits.Bit(idx) == 1 {
			if enqueueIdx >= len(btx.l1TxOrigins) {
				return nil, newDecodingError("l1 tx origin not enough")
			}
			rtx.QueueOrigin = QueueOriginL1ToL2
			rtx.L1TxOrigin = btx.l1TxOrigins[enqueueIdx]
			enqueueIdx++
		}
		txs = append(txs, rtx)
	}
	return txs, nil
}

func writeSignatures(w io.Writer, sigs []spanBatchSignature) error {
	for _, sig := range sigs {
		r := sig.r.Bytes32()
		if _, err := w.Write(r[:]); err != nil {
			return err
		}
		s := sig.s.Bytes32()
		if _, err := w.Write(s[:]); err != nil {
			return err
		}
	}
	return nil
}

func readSignatures(r *bytes.Reader, count uint64) ([]spanBatchSignature, error) {
	if uint64(r.Len()) < count*64 {
		return nil, newDecodingError("need %d signature bytes, have %d", count*64, r.Len())
	}
	sigs := make([]spanBatchSignature, count)
	var buf [32]byte
	for i := range sigs {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, newDecodingError("failed to read sig r").WithCause(err)
		}
		sigs[i].r.SetBytes32(buf[:])
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, newDecodingError("failed to read sig s").WithCause(err)
		}
		sigs[i].s.SetBytes32(buf[:])
	}
	return sigs, nil
}

func readAddresses(r *bytes.Reader, count uint64) ([]common.Address, error) {
	if uint64(r.Len()) < count*common.AddressLength {
		return nil, newDecodingError("need %d address bytes, have %d", count*common.AddressLength, r.Len())
	}
	addrs := make([]common.Address, count)
	for i := range addrs {
		if _, err := io.ReadFull(r, addrs[i][:]); err != nil {
			return nil, newDecodingError("failed to read address").WithCause(err)
		}
	}
	return addrs, nil
}

func writeUvarints(w io.Writer, values []uint64) error {
	var buf [binary.MaxVarintLen64]byte
	for _, v := range values {
		n := binary.PutUvarint(buf[:], v)
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

func readUvarints(r *bytes.Reader, count uint64) ([]uint64, error) {
	// every uvarint is at least one byte
	if uint64(r.Len()) < count {
		return nil, newDecodingError("need %d uvarints, have %d bytes", count, r.Len())
	}
	out := make([]uint64, count)
	for i := range out {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, newDecodingError("failed to read uvarint").WithCause(eofAsUnexpected(err))
		}
		out[i] = v
	}
	return out, nil
}
