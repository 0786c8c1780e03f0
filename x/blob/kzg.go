package blob

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
)

// KZGBlob views the blob as a go-ethereum KZG blob without copying.
func (b *Blob) KZGBlob() *kzg4844.Blob {
	return (*kzg4844.Blob)(b)
}

// ComputeKZGCommitment computes the KZG commitment of the blob.
func (b *Blob) ComputeKZGCommitment() (kzg4844.Commitment, error) {
	c, err := kzg4844.BlobToCommitment(b.KZGBlob())
	if err != nil {
		return kzg4844.Commitment{}, fmt.Errorf("failed to compute blob commitment: %w", err)
	}
	return c, nil
}

// KZGToVersionedHash returns the version 1 hash of a commitment, the value
// referenced by blob transactions.
func KZGToVersionedHash(commitment kzg4844.Commitment) common.Hash {
	return common.Hash(kzg4844.CalcBlobHashV1(sha256.New(), &commitment))
}

// VersionedHash computes the commitment of b and returns its versioned hash.
func (b *Blob) VersionedHash() (common.Hash, error) {
	c, err := b.ComputeKZGCommitment()
	if err != nil {
		return common.Hash{}, err
	}
	return KZGToVersionedHash(c), nil
}
