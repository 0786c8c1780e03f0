package derive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
)

// Batch format
//
//	batch = batch_type ++ payload
//
// and every batch in a channel is RLP encoded as a byte string.
const (
	SingularBatchType = 0
	SpanBatchType     = 1
)

// Batch is implemented by SingularBatch and RawSpanBatch.
type Batch interface {
	GetBatchType() int
	GetTimestamp() uint64
	encode(w io.Writer) error
	decode(r *bytes.Reader) error
}

// BatchData is a typed batch as written to a channel.
type BatchData struct {
	inner Batch
}

func NewBatchData(inner Batch) *BatchData {
	return &BatchData{inner: inner}
}

func (b *BatchData) GetBatchType() int {
	return b.inner.GetBatchType()
}

// Singular returns the inner singular batch, if that is what b holds.
func (b *BatchData) Singular() (*SingularBatch, bool) {
	sb, ok := b.inner.(*SingularBatch)
	return sb, ok
}

// Span returns the inner raw span batch, if that is what b holds.
func (b *BatchData) Span() (*RawSpanBatch, bool) {
	sb, ok := b.inner.(*RawSpanBatch)
	return sb, ok
}

// EncodeRLP implements rlp.Encoder.
func (b *BatchData) EncodeRLP(w io.Writer) error {
	buf, err := b.MarshalBinary()
	if err != nil {
		return err
	}
	return rlp.Encode(w, buf)
}

// MarshalBinary returns the type byte followed by the batch payload.
func (b *BatchData) MarshalBinary() ([]byte, error) {
	if b.inner == nil {
		return nil, errors.New("empty batch data")
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(b.inner.GetBatchType()))
	if err := b.inner.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRLP implements rlp.Decoder.
func (b *BatchData) DecodeRLP(s *rlp.Stream) error {
	data, err := s.Bytes()
	if err != nil {
		return err
	}
	return b.UnmarshalBinary(data)
}

// UnmarshalBinary decodes a typed batch.
func (b *BatchData) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return newDecodingError("batch too short")
	}
	r := bytes.NewReader(data[1:])
	var inner Batch
	switch data[0] {
	case SingularBatchType:
		inner = new(SingularBatch)
	case SpanBatchType:
		inner = new(RawSpanBatch)
	default:
		return newDecodingError("unrecognized batch type: %d", data[0])
	}
	if err := inner.decode(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return newDecodingError("%d trailing bytes after batch of type %d", r.Len(), data[0])
	}
	b.inner = inner
	return nil
}

func (b *BatchData) String() string {
	if b.inner == nil {
		return "BatchData(empty)"
	}
	return fmt.Sprintf("BatchData(type=%d, timestamp=%d)", b.inner.GetBatchType(), b.inner.GetTimestamp())
}
