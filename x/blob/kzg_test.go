package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlob_VersionedHash(t *testing.T) {
	var b Blob
	require.NoError(t, b.FromData(Data("versioned hash input")))

	h1, err := b.VersionedHash()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), h1[0], "version 1 hashes start with 0x01")

	h2, err := b.VersionedHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	var other Blob
	require.NoError(t, other.FromData(Data("different input")))
	h3, err := other.VersionedHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
