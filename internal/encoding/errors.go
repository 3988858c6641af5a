package encoding

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInputTooLarge reports text longer than the encoder's input limit.
	ErrInputTooLarge = errors.New("input too large")
	// ErrUnknownSpecialToken reports an allowed special literal the encoding does not define.
	ErrUnknownSpecialToken = errors.New("unknown special token")
	// ErrNotSingleToken reports bytes that do not form exactly one token.
	ErrNotSingleToken = errors.New("not a single token")
	// ErrUnknownModel reports a model name with no known encoding.
	ErrUnknownModel = errors.New("unknown model")
)

// UnknownEncodingError reports a request for an encoding that is not registered.
type UnknownEncodingError struct {
	Name  string
	Known []string
}

func (err *UnknownEncodingError) Error() string {
	return fmt.Sprintf("unknown encoding %q (known: %s)", err.Name, strings.Join(err.Known, ", "))
}

// DecodeReason classifies a DecodeError.
type DecodeReason string

const (
	// DecodeReasonUnknownToken means a token ID has no bytes in the vocabulary.
	DecodeReasonUnknownToken DecodeReason = "unknown token"
	// DecodeReasonInvalidText means the decoded bytes are not valid UTF-8.
	DecodeReasonInvalidText DecodeReason = "invalid text"
)

// DecodeError reports a token sequence that cannot be decoded.
type DecodeError struct {
	Reason DecodeReason
	// Token and Position identify the offending ID for DecodeReasonUnknownToken.
	Token    int
	Position int
	// Offset is the byte offset of the first invalid sequence for DecodeReasonInvalidText.
	Offset int
}

func (err *DecodeError) Error() string {
	switch err.Reason {
	case DecodeReasonUnknownToken:
		return fmt.Sprintf("decode: unknown token %d at position %d", err.Token, err.Position)
	case DecodeReasonInvalidText:
		return fmt.Sprintf("decode: invalid UTF-8 at byte offset %d", err.Offset)
	default:
		return "decode: " + string(err.Reason)
	}
}

// DisallowedSpecialError reports a special token literal found in text encoded
// with SpecialReject.
type DisallowedSpecialError struct {
	Literal string
}

func (err *DisallowedSpecialError) Error() string {
	return fmt.Sprintf("text contains disallowed special token %q", err.Literal)
}
