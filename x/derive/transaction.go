package derive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// QueueOrigin tells whether a transaction was ordered by the sequencer or
// enqueued from L1.
type QueueOrigin uint8

const (
	QueueOriginSequencer QueueOrigin = 0
	QueueOriginL1ToL2    QueueOrigin = 1
)

func (q QueueOrigin) String() string {
	switch q {
	case QueueOriginSequencer:
		return "sequencer"
	case QueueOriginL1ToL2:
		return "l1tol2"
	default:
		return fmt.Sprintf("queue_origin(%d)", uint8(q))
	}
}

// SeqSignature is the sequencer signature attached to every rollup
// transaction. V is the y-parity bit.
type SeqSignature struct {
	V uint64
	R uint256.Int
	S uint256.Int
}

// Transaction is an L2 transaction with its rollup metadata.
type Transaction struct {
	Tx          *types.Transaction
	QueueOrigin QueueOrigin
	// L1TxOrigin is the L1 sender of an enqueued transaction.
	L1TxOrigin common.Address
	SeqSig     SeqSignature
}

func (t *Transaction) IsEnqueue() bool {
	return t.QueueOrigin == QueueOriginL1ToL2
}

func (t *Transaction) Hash() common.Hash {
	return t.Tx.Hash()
}

type txEnvelope struct {
	Raw         []byte
	QueueOrigin uint8
	L1TxOrigin  common.Address
	SeqV        uint64
	SeqR        *big.Int
	SeqS        *big.Int
}

func (t *Transaction) envelope() (*txEnvelope, error) {
	if t == nil || t.Tx == nil {
		return nil, errors.New("transaction is nil")
	}
	raw, err := t.Tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return &txEnvelope{
		Raw:         raw,
		QueueOrigin: uint8(t.QueueOrigin),
		L1TxOrigin:  t.L1TxOrigin,
		SeqV:        t.SeqSig.V,
		SeqR:        t.SeqSig.R.ToBig(),
		SeqS:        t.SeqSig.S.ToBig(),
	}, nil
}

func (t *Transaction) fromEnvelope(env *txEnvelope) error {
	if env.QueueOrigin > uint8(QueueOriginL1ToL2) {
		return newDecodingError("invalid queue origin %d", env.QueueOrigin)
	}
	if env.SeqV > 1 {
		return newDecodingError("invalid sequencer y-parity %d", env.SeqV)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(env.Raw); err != nil {
		return newDecodingError("invalid transaction").WithCause(err)
	}
	r, overflow := uint256.FromBig(env.SeqR)
	if overflow {
		return newDecodingError("sequencer signature r overflows 256 bits")
	}
	s, overflow := uint256.FromBig(env.SeqS)
	if overflow {
		return newDecodingError("sequencer signature s overflows 256 bits")
	}
	*t = Transaction{
		Tx:          tx,
		QueueOrigin: QueueOrigin(env.QueueOrigin),
		L1TxOrigin:  env.L1TxOrigin,
		SeqSig:      SeqSignature{V: env.SeqV, R: *r, S: *s},
	}
	return nil
}

// EncodeRLP implements rlp.Encoder.
func (t *Transaction) EncodeRLP(w io.Writer) error {
	env, err := t.envelope()
	if err != nil {
		return err
	}
	return rlp.Encode(w, env)
}

// DecodeRLP implements rlp.Decoder.
func (t *Transaction) DecodeRLP(s *rlp.Stream) error {
	var env txEnvelope
	if err := s.Decode(&env); err != nil {
		return err
	}
	return t.fromEnvelope(&env)
}

type txJSON struct {
	Raw         hexutil.Bytes  `json:"raw"`
	QueueOrigin uint8          `json:"queueOrigin"`
	L1TxOrigin  common.Address `json:"l1TxOrigin"`
	SeqV        hexutil.Uint64 `json:"seqV"`
	SeqR        *hexutil.Big   `json:"seqR"`
	SeqS        *hexutil.Big   `json:"seqS"`
	Hash        *common.Hash   `json:"hash,omitempty"`
}

func (t *Transaction) MarshalJSON() ([]byte, error) {
	env, err := t.envelope()
	if err != nil {
		return nil, err
	}
	h := t.Tx.Hash()
	return json.Marshal(txJSON{
		Raw:         env.Raw,
		QueueOrigin: env.QueueOrigin,
		L1TxOrigin:  env.L1TxOrigin,
		SeqV:        hexutil.Uint64(env.SeqV),
		SeqR:        (*hexutil.Big)(env.SeqR),
		SeqS:        (*hexutil.Big)(env.SeqS),
		Hash:        &h,
	})
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var dec txJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	env := &txEnvelope{
		Raw:         dec.Raw,
		QueueOrigin: dec.QueueOrigin,
		L1TxOrigin:  dec.L1TxOrigin,
		SeqV:        uint64(dec.SeqV),
		SeqR:        new(big.Int),
		SeqS:        new(big.Int),
	}
	if dec.SeqR != nil {
		env.SeqR = dec.SeqR.ToInt()
	}
	if dec.SeqS != nil {
		env.SeqS = dec.SeqS.ToInt()
	}
	return t.fromEnvelope(env)
}
