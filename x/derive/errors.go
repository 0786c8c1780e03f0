package derive

import (
	"fmt"
)

// ErrorKind categorizes codec failures.
type ErrorKind int

const (
	// KindOrdering is an out-of-order block appended to a span batch.
	KindOrdering ErrorKind = iota
	// KindChannelFull is the recoverable signal to open a new channel.
	KindChannelFull
	// KindChannelClosed is a mutation of a closed channel.
	KindChannelClosed
	// KindDuplicateFrame is a repeated frame number or a second last frame.
	KindDuplicateFrame
	// KindFrameMismatch is a frame routed to the wrong channel or past its end.
	KindFrameMismatch
	// KindDecoding is malformed input on the read side.
	KindDecoding
	// KindSizeLimit is a payload over a hard cap.
	KindSizeLimit
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindOrdering:
		return "ordering"
	case KindChannelFull:
		return "channel_full"
	case KindChannelClosed:
		return "channel_closed"
	case KindDuplicateFrame:
		return "duplicate_frame"
	case KindFrameMismatch:
		return "frame_mismatch"
	case KindDecoding:
		return "decoding"
	case KindSizeLimit:
		return "size_limit"
	default:
		return "unknown"
	}
}

// Kind sentinels match any CodecError of the same kind with errors.Is.
var (
	ErrOrdering       = &CodecError{Kind: KindOrdering}
	ErrChannelFull    = &CodecError{Kind: KindChannelFull}
	ErrChannelClosed  = &CodecError{Kind: KindChannelClosed}
	ErrDuplicateFrame = &CodecError{Kind: KindDuplicateFrame}
	ErrFrameMismatch  = &CodecError{Kind: KindFrameMismatch}
	ErrDecoding       = &CodecError{Kind: KindDecoding}
	ErrSizeLimit      = &CodecError{Kind: KindSizeLimit}
)

// CodecError represents a structured error for encode and decode operations
type CodecError struct {
	Kind    ErrorKind
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *CodecError) Error() string {
	switch {
	case e.Message == "":
		return fmt.Sprintf("codec %s error", e.Kind)
	case e.Cause != nil:
		return fmt.Sprintf("codec %s error: %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("codec %s error: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying cause error
func (e *CodecError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the kind sentinel of e.
func (e *CodecError) Is(target error) bool {
	t, ok := target.(*CodecError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// NewCodecError creates a new codec error with the specified kind and message
func NewCodecError(kind ErrorKind, format string, args ...interface{}) *CodecError {
	return &CodecError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Context: make(map[string]interface{}),
	}
}

// WithCause adds a cause error to the codec error
func (e *CodecError) WithCause(cause error) *CodecError {
	e.Cause = cause
	return e
}

// WithContext adds context information to the codec error
func (e *CodecError) WithContext(key string, value interface{}) *CodecError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newOrderingError(format string, args ...interface{}) *CodecError {
	return NewCodecError(KindOrdering, format, args...)
}

func newDecodingError(format string, args ...interface{}) *CodecError {
	return NewCodecError(KindDecoding, format, args...)
}

func newSizeLimitError(format string, args ...interface{}) *CodecError {
	return NewCodecError(KindSizeLimit, format, args...)
}
