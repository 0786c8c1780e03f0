package inbox

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/batcher/x/derive"
)

// DAType says where the frames of a submission live.
type DAType uint8

const (
	// DATypeInline carries the frames in the payload.
	DATypeInline DAType = 0
	// DATypeObjectStore carries the object store key of the frames.
	DATypeObjectStore DAType = 1
	// DATypeBlob carries the hashes of the blob transactions holding the frames.
	DATypeBlob DAType = 3
)

func (t DAType) String() string {
	switch t {
	case DATypeInline:
		return "inline"
	case DATypeObjectStore:
		return "object_store"
	case DATypeBlob:
		return "blob"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

func (t DAType) Valid() bool {
	return t == DATypeInline || t == DATypeObjectStore || t == DATypeBlob
}

// Compression is the compression of the frame data outside of blobs.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZlib Compression = 11
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

func (c Compression) Valid() bool {
	return c == CompressionNone || c == CompressionZlib
}

const (
	// HeaderLength is [1 DA type][1 compression][32 batch index][32 L2 start][4 block count].
	HeaderLength = 1 + 1 + 32 + 32 + 4
)

// Submission is the calldata of one inbox transaction.
type Submission struct {
	DAType      DAType
	Compression Compression
	BatchIndex  uint256.Int
	L2Start     uint256.Int
	BlockCount  uint32
	Payload     []byte
}

func (s *Submission) validate() error {
	if !s.DAType.Valid() {
		return derive.NewCodecError(derive.KindDecoding, "unknown DA type %d", uint8(s.DAType))
	}
	if !s.Compression.Valid() {
		return derive.NewCodecError(derive.KindDecoding, "unknown compression type %d", uint8(s.Compression))
	}
	if s.DAType == DATypeBlob {
		if s.Compression != CompressionNone {
			return derive.NewCodecError(derive.KindDecoding, "blob submissions are not compressed")
		}
		if len(s.Payload)%common.HashLength != 0 {
			return derive.NewCodecError(derive.KindDecoding,
				"blob payload length %d is not a multiple of %d", len(s.Payload), common.HashLength)
		}
	}
	return nil
}

func (s *Submission) MarshalBinary() ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	out := make([]byte, HeaderLength, HeaderLength+len(s.Payload))
	out[0] = byte(s.DAType)
	out[1] = byte(s.Compression)
	batchIndex := s.BatchIndex.Bytes32()
	copy(out[2:34], batchIndex[:])
	l2Start := s.L2Start.Bytes32()
	copy(out[34:66], l2Start[:])
	binary.BigEndian.PutUint32(out[66:70], s.BlockCount)
	return append(out, s.Payload...), nil
}

func (s *Submission) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderLength {
		return derive.NewCodecError(derive.KindDecoding, "submission of %d bytes is shorter than its header", len(data))
	}
	s.DAType = DAType(data[0])
	s.Compression = Compression(data[1])
	s.BatchIndex.SetBytes32(data[2:34])
	s.L2Start.SetBytes32(data[34:66])
	s.BlockCount = binary.BigEndian.Uint32(data[66:70])
	s.Payload = append([]byte(nil), data[HeaderLength:]...)
	return s.validate()
}

// AppendBlobTxHashes records the blob transactions carrying the frames.
func (s *Submission) AppendBlobTxHashes(hashes ...common.Hash) error {
	if s.DAType != DATypeBlob {
		return fmt.Errorf("cannot append blob tx hashes to a %s submission", s.DAType)
	}
	for _, h := range hashes {
		s.Payload = append(s.Payload, h[:]...)
	}
	return nil
}

// BlobTxHashes returns the blob transaction hashes of a blob submission.
func (s *Submission) BlobTxHashes() ([]common.Hash, error) {
	if s.DAType != DATypeBlob {
		return nil, fmt.Errorf("a %s submission has no blob tx hashes", s.DAType)
	}
	if len(s.Payload)%common.HashLength != 0 {
		return nil, derive.NewCodecError(derive.KindDecoding,
			"blob payload length %d is not a multiple of %d", len(s.Payload), common.HashLength)
	}
	hashes := make([]common.Hash, 0, len(s.Payload)/common.HashLength)
	for i := 0; i < len(s.Payload); i += common.HashLength {
		hashes = append(hashes, common.BytesToHash(s.Payload[i:i+common.HashLength]))
	}
	return hashes, nil
}

func (s *Submission) String() string {
	return fmt.Sprintf("Submission{da=%s, compression=%s, batch=%s, l2_start=%s, blocks=%d, payload=%d}",
		s.DAType, s.Compression, s.BatchIndex.Dec(), s.L2Start.Dec(), s.BlockCount, len(s.Payload))
}
