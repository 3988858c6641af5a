// Package vocabularytest builds small vocabularies for tests.
package vocabularytest

import (
	"testing"

	"github.com/temirov/tokencount/internal/vocabulary"
)

// FirstMergeRank is the rank given to the first merge passed to Build.
const FirstMergeRank = 256

// Entries returns the 256 single-byte entries (rank == byte value) followed by
// merges ranked from FirstMergeRank in the given order.
func Entries(merges ...string) []vocabulary.Entry {
	entries := make([]vocabulary.Entry, 0, FirstMergeRank+len(merges))
	for byteValue := 0; byteValue < FirstMergeRank; byteValue++ {
		entries = append(entries, vocabulary.Entry{Bytes: []byte{byte(byteValue)}, Rank: byteValue})
	}
	for mergeIndex, merge := range merges {
		entries = append(entries, vocabulary.Entry{Bytes: []byte(merge), Rank: FirstMergeRank + mergeIndex})
	}
	return entries
}

// Build returns a Store over Entries(merges...) with the given special tokens.
func Build(t testing.TB, specials map[string]int, merges ...string) *vocabulary.Store {
	t.Helper()
	store, err := vocabulary.NewStore(Entries(merges...), specials)
	if err != nil {
		t.Fatalf("build test vocabulary: %v", err)
	}
	return store
}
