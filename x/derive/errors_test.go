package derive

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := NewCodecError(KindDecoding, "bad field %d", 3).
		WithCause(cause).
		WithContext("channel_id", "abc")

	assert.Equal(t, "codec decoding error: bad field 3: boom", err.Error())
	assert.Equal(t, "abc", err.Context["channel_id"])

	wrapped := fmt.Errorf("outer: %w", err)
	require.ErrorIs(t, wrapped, ErrDecoding)
	require.ErrorIs(t, wrapped, cause)
	assert.NotErrorIs(t, wrapped, ErrOrdering)

	var cerr *CodecError
	require.ErrorAs(t, wrapped, &cerr)
	assert.Equal(t, KindDecoding, cerr.Kind)

	// a message-bearing error is not a sentinel
	assert.NotErrorIs(t, ErrDecoding, err)

	assert.Equal(t, "codec size_limit error", ErrSizeLimit.Error())
	assert.Equal(t, "unknown", ErrorKind(99).String())
}
