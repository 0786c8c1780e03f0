package inbox

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/batcher/x/blob"
)

// Envelope is the JSON form of a sequence of submissions. Blobs holds the
// payload of every blob, keyed by the hash of the blob transaction carrying it.
type Envelope struct {
	Submissions []hexutil.Bytes                 `json:"submissions"`
	Blobs       map[common.Hash][]hexutil.Bytes `json:"blobs,omitempty"`
}

// NewEnvelope encodes outputs. Blob outputs must already reference their blob
// transaction, see AttachBlobTx.
func NewEnvelope(outputs []*Output) (*Envelope, error) {
	env := &Envelope{Submissions: make([]hexutil.Bytes, 0, len(outputs))}
	for i, out := range outputs {
		data, err := out.Submission.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("submission %d: %w", i, err)
		}
		env.Submissions = append(env.Submissions, data)
		if len(out.Blobs) == 0 {
			continue
		}
		hashes, err := out.Submission.BlobTxHashes()
		if err != nil {
			return nil, fmt.Errorf("submission %d: %w", i, err)
		}
		if len(hashes) != 1 {
			return nil, fmt.Errorf("submission %d: expected one blob transaction, got %d", i, len(hashes))
		}
		payloads := make([]hexutil.Bytes, 0, len(out.Blobs))
		for j, b := range out.Blobs {
			data, err := b.ToData()
			if err != nil {
				return nil, fmt.Errorf("submission %d blob %d: %w", i, j, err)
			}
			payloads = append(payloads, hexutil.Bytes(data))
		}
		if env.Blobs == nil {
			env.Blobs = make(map[common.Hash][]hexutil.Bytes)
		}
		env.Blobs[hashes[0]] = payloads
	}
	return env, nil
}

// Decode parses the submissions and rebuilds the blobs they reference.
func (e *Envelope) Decode() ([]*Submission, MemoryBlobSource, error) {
	subs := make([]*Submission, 0, len(e.Submissions))
	for i, data := range e.Submissions {
		var sub Submission
		if err := sub.UnmarshalBinary(data); err != nil {
			return nil, nil, fmt.Errorf("submission %d: %w", i, err)
		}
		subs = append(subs, &sub)
	}
	source := make(MemoryBlobSource, len(e.Blobs))
	for h, payloads := range e.Blobs {
		blobs := make([]*blob.Blob, 0, len(payloads))
		for j, p := range payloads {
			var b blob.Blob
			if err := b.FromData(blob.Data(p)); err != nil {
				return nil, nil, fmt.Errorf("blob %d of %s: %w", j, h.TerminalString(), err)
			}
			blobs = append(blobs, &b)
		}
		source[h] = blobs
	}
	return subs, source, nil
}
