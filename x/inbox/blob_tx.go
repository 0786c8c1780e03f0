package inbox

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/holiman/uint256"

	"github.com/compose-network/batcher/x/blob"
)

// NewBlobTx builds the unsigned blob transaction carrying blobs to the inbox
// at to, with its sidecar of commitments and proofs. Fees and nonce are left
// to the sender.
func NewBlobTx(chainID *big.Int, to common.Address, blobs []*blob.Blob) (*types.Transaction, error) {
	if len(blobs) == 0 {
		return nil, fmt.Errorf("blob transaction without blobs")
	}
	cid, overflow := uint256.FromBig(chainID)
	if overflow {
		return nil, fmt.Errorf("chain id %s overflows 256 bits", chainID)
	}

	sidecar := &types.BlobTxSidecar{}
	hashes := make([]common.Hash, 0, len(blobs))
	for i, b := range blobs {
		commitment, err := b.ComputeKZGCommitment()
		if err != nil {
			return nil, fmt.Errorf("blob %d: %w", i, err)
		}
		proof, err := kzg4844.ComputeBlobProof(b.KZGBlob(), commitment)
		if err != nil {
			return nil, fmt.Errorf("blob %d: failed to compute blob proof: %w", i, err)
		}
		sidecar.Blobs = append(sidecar.Blobs, *b.KZGBlob())
		sidecar.Commitments = append(sidecar.Commitments, commitment)
		sidecar.Proofs = append(sidecar.Proofs, proof)
		hashes = append(hashes, blob.KZGToVersionedHash(commitment))
	}

	return types.NewTx(&types.BlobTx{
		ChainID:    cid,
		To:         to,
		BlobHashes: hashes,
		Sidecar:    sidecar,
	}), nil
}

// AttachBlobTx builds the blob transaction of a DATypeBlob output and records
// its hash in the submission.
func AttachBlobTx(chainID *big.Int, to common.Address, out *Output) (*types.Transaction, error) {
	if out.Submission.DAType != DATypeBlob {
		return nil, fmt.Errorf("a %s submission carries no blobs", out.Submission.DAType)
	}
	tx, err := NewBlobTx(chainID, to, out.Blobs)
	if err != nil {
		return nil, err
	}
	if err := out.Submission.AppendBlobTxHashes(tx.Hash()); err != nil {
		return nil, err
	}
	return tx, nil
}
