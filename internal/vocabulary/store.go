// Package vocabulary holds the rank tables of a byte-pair-encoding vocabulary.
package vocabulary

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// baseByteCount is the number of single-byte tokens every vocabulary must carry.
const baseByteCount = 256

// Entry is one merge-derived token: its raw bytes and its rank.
type Entry struct {
	Bytes []byte
	Rank  int
}

// Store is an immutable vocabulary. It is safe for concurrent use once constructed.
//
// Invariants:
//   - ranks[string(b)] == id  <=>  tokens[id] equals b
//   - every byte value 0..255 has a single-byte entry with a rank below 256
//   - special token IDs never collide with merge-derived IDs
type Store struct {
	ranks         map[string]int
	tokens        [][]byte
	byteTokens    [baseByteCount]int
	special       map[string]int
	specialByID   map[int]string
	specialOrder  []string
	mergeableSize int
	maxTokenID    int
}

// NewStore validates entries and special tokens and builds a Store.
// Entries must be ordered by strictly increasing rank, with the 256 single
// bytes holding ranks 0..255.
func NewStore(entries []Entry, specials map[string]int) (*Store, error) {
	builder := newStoreBuilder(len(entries), len(specials), 0)
	for entryIndex, entry := range entries {
		if err := builder.add(entry.Bytes, entry.Rank); err != nil {
			return nil, &LoadError{Source: inMemorySourceName, Line: entryIndex + 1, Err: err}
		}
	}
	return builder.finish(specials)
}

// LookupRank returns the token ID of an exact byte sequence.
func (store *Store) LookupRank(sequence []byte) (int, bool) {
	rank, found := store.ranks[string(sequence)]
	return rank, found
}

// LookupBytes returns the byte sequence of a merge-derived token ID.
// The returned slice is shared and must not be modified.
func (store *Store) LookupBytes(token int) ([]byte, bool) {
	if token < 0 || token >= len(store.tokens) {
		return nil, false
	}
	sequence := store.tokens[token]
	if sequence == nil {
		return nil, false
	}
	return sequence, true
}

// LookupSpecial returns the ID of a special token literal.
func (store *Store) LookupSpecial(literal string) (int, bool) {
	token, found := store.special[literal]
	return token, found
}

// SpecialLiteral returns the literal of a special token ID.
func (store *Store) SpecialLiteral(token int) (string, bool) {
	literal, found := store.specialByID[token]
	return literal, found
}

// SpecialTokens lists special literals in matching priority order: longer
// literals first, then lower IDs.
func (store *Store) SpecialTokens() []string {
	return append([]string(nil), store.specialOrder...)
}

// ByteToken returns the token ID of a single byte.
func (store *Store) ByteToken(value byte) int {
	return store.byteTokens[value]
}

// MergeableSize reports the number of merge-derived tokens.
func (store *Store) MergeableSize() int {
	return store.mergeableSize
}

// Len reports the number of tokens including special tokens.
func (store *Store) Len() int {
	return store.mergeableSize + len(store.special)
}

// MaxTokenID reports the largest token ID, merge-derived or special.
func (store *Store) MaxTokenID() int {
	return store.maxTokenID
}

// WriteTo serializes the merge-derived table in the .tiktoken line format.
// Special tokens are not part of the format and are not written.
func (store *Store) WriteTo(writer io.Writer) (int64, error) {
	bufferedWriter := bufio.NewWriter(writer)
	var written int64
	for token, sequence := range store.tokens {
		if sequence == nil {
			continue
		}
		line := base64.StdEncoding.EncodeToString(sequence) + " " + strconv.Itoa(token) + "\n"
		count, err := bufferedWriter.WriteString(line)
		written += int64(count)
		if err != nil {
			return written, fmt.Errorf("write vocabulary entry %d: %w", token, err)
		}
	}
	if err := bufferedWriter.Flush(); err != nil {
		return written, fmt.Errorf("flush vocabulary: %w", err)
	}
	return written, nil
}

type storeBuilder struct {
	ranks        map[string]int
	tokens       [][]byte
	previousRank int
	seenBytes    [baseByteCount]bool
	byteTokens   [baseByteCount]int
	specialCount int
	explicitSize int
}

// newStoreBuilder bounds accepted ranks: below explicitSize when it is
// positive, otherwise at most one gap slot per declared special token.
func newStoreBuilder(capacityHint, specialCount, explicitSize int) *storeBuilder {
	return &storeBuilder{
		ranks:        make(map[string]int, capacityHint),
		tokens:       make([][]byte, 0, capacityHint),
		previousRank: -1,
		specialCount: specialCount,
		explicitSize: explicitSize,
	}
}

func (builder *storeBuilder) maximumRank() int {
	if builder.explicitSize > 0 {
		return builder.explicitSize - 1
	}
	return len(builder.ranks) + builder.specialCount
}

func (builder *storeBuilder) add(sequence []byte, rank int) error {
	if len(sequence) == 0 {
		return fmt.Errorf("%w: empty byte sequence for rank %d", ErrMalformedEntry, rank)
	}
	if rank < 0 {
		return fmt.Errorf("%w: negative rank %d", ErrMalformedEntry, rank)
	}
	if rank <= builder.previousRank {
		return fmt.Errorf("%w: rank %d follows rank %d", ErrNonMonotonicRank, rank, builder.previousRank)
	}
	if limit := builder.maximumRank(); rank > limit {
		return fmt.Errorf("%w: rank %d exceeds %d", ErrMalformedEntry, rank, limit)
	}
	if singleByte := len(sequence) == 1; singleByte != (rank < baseByteCount) {
		return fmt.Errorf("%w: %q has rank %d", ErrNonContiguousBase, sequence, rank)
	}
	key := string(sequence)
	if existing, duplicated := builder.ranks[key]; duplicated {
		return fmt.Errorf("%w: %q already has rank %d", ErrDuplicateSequence, sequence, existing)
	}
	builder.ranks[key] = rank
	for len(builder.tokens) < rank {
		builder.tokens = append(builder.tokens, nil)
	}
	builder.tokens = append(builder.tokens, []byte(key))
	if len(sequence) == 1 {
		builder.seenBytes[sequence[0]] = true
		builder.byteTokens[sequence[0]] = rank
	}
	builder.previousRank = rank
	return nil
}

func (builder *storeBuilder) finish(specials map[string]int) (*Store, error) {
	for byteValue := 0; byteValue < baseByteCount; byteValue++ {
		if !builder.seenBytes[byteValue] {
			return nil, &LoadError{Err: fmt.Errorf("%w: byte 0x%02x", ErrMissingBaseByte, byteValue)}
		}
	}

	store := &Store{
		ranks:         builder.ranks,
		tokens:        builder.tokens,
		byteTokens:    builder.byteTokens,
		special:       make(map[string]int, len(specials)),
		specialByID:   make(map[int]string, len(specials)),
		mergeableSize: len(builder.ranks),
		maxTokenID:    builder.previousRank,
	}

	for literal, token := range specials {
		if literal == "" {
			return nil, &LoadError{Err: fmt.Errorf("%w: empty special token literal", ErrSpecialCollision)}
		}
		if token < 0 {
			return nil, &LoadError{Err: fmt.Errorf("%w: special token %q has negative id %d", ErrSpecialCollision, literal, token)}
		}
		if _, merged := store.LookupBytes(token); merged {
			return nil, &LoadError{Err: fmt.Errorf("%w: special token %q reuses merge-derived id %d", ErrSpecialCollision, literal, token)}
		}
		if other, taken := store.specialByID[token]; taken {
			return nil, &LoadError{Err: fmt.Errorf("%w: special tokens %q and %q share id %d", ErrSpecialCollision, other, literal, token)}
		}
		store.special[literal] = token
		store.specialByID[token] = literal
		store.specialOrder = append(store.specialOrder, literal)
		if token > store.maxTokenID {
			store.maxTokenID = token
		}
	}

	sort.Slice(store.specialOrder, func(left, right int) bool {
		leftLiteral, rightLiteral := store.specialOrder[left], store.specialOrder[right]
		if len(leftLiteral) != len(rightLiteral) {
			return len(leftLiteral) > len(rightLiteral)
		}
		return store.special[leftLiteral] < store.special[rightLiteral]
	})

	return store, nil
}
