package vocabulary

import (
	"errors"
	"fmt"
)

const inMemorySourceName = "memory"

var (
	// ErrMalformedEntry reports a line that is not "base64 rank".
	ErrMalformedEntry = errors.New("malformed vocabulary entry")
	// ErrDuplicateSequence reports a byte sequence listed twice.
	ErrDuplicateSequence = errors.New("duplicate byte sequence")
	// ErrNonMonotonicRank reports ranks that do not strictly increase.
	ErrNonMonotonicRank = errors.New("non-monotonic rank")
	// ErrMissingBaseByte reports a byte value without a single-byte token.
	ErrMissingBaseByte = errors.New("missing base byte token")
	// ErrNonContiguousBase reports single-byte tokens outside IDs 0..255 or
	// longer tokens inside them.
	ErrNonContiguousBase = errors.New("non-contiguous base token IDs")
	// ErrSpecialCollision reports an invalid special token table.
	ErrSpecialCollision = errors.New("invalid special token")
	// ErrVocabularySize reports a table whose size differs from the declared one.
	ErrVocabularySize = errors.New("vocabulary size mismatch")
	// ErrChecksumMismatch reports a downloaded vocabulary whose digest differs from the pinned one.
	ErrChecksumMismatch = errors.New("vocabulary checksum mismatch")
)

// LoadError describes why a vocabulary could not be constructed.
type LoadError struct {
	Source string
	Line   int
	Err    error
}

func (loadError *LoadError) Error() string {
	source := loadError.Source
	if source == "" {
		source = inMemorySourceName
	}
	if loadError.Line > 0 {
		return fmt.Sprintf("load vocabulary %s line %d: %v", source, loadError.Line, loadError.Err)
	}
	return fmt.Sprintf("load vocabulary %s: %v", source, loadError.Err)
}

func (loadError *LoadError) Unwrap() error {
	return loadError.Err
}
