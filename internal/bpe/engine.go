// Package bpe implements the byte-pair merge step of a byte-level BPE tokenizer.
//
// A piece is first split into one symbol per byte. The adjacent pair whose
// concatenated bytes have the lowest rank is merged repeatedly, the leftmost
// pair winning ties, until no adjacent concatenation is ranked. Candidates live
// in a binary heap ordered by (rank, position) so a piece of n bytes costs
// O(n log n) rather than the quadratic rescans of the naive form.
package bpe

import (
	"cmp"
	"errors"
	"fmt"
	"sync"

	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
)

// ErrUnrankedSymbol reports a final symbol that has no rank. It cannot happen
// with a vocabulary that ranks every single byte.
var ErrUnrankedSymbol = errors.New("unranked symbol")

// Ranks resolves byte sequences to token ranks.
type Ranks interface {
	LookupRank(sequence []byte) (int, bool)
}

// Span is the half-open byte range [Start, End) of one output symbol.
type Span struct {
	Start int
	End   int
}

// candidate is a mergeable pair starting at slot left. The versions pin the
// pair to the symbols that existed when it was queued.
type candidate struct {
	rank         int
	left         int
	leftVersion  int
	rightVersion int
}

func compareCandidates(first, second candidate) int {
	if byRank := cmp.Compare(first.rank, second.rank); byRank != 0 {
		return byRank
	}
	return cmp.Compare(first.left, second.left)
}

// workspace holds the arena of one merge call. Slot i always holds the symbol
// starting at byte i; merges fold the right symbol into the left slot.
type workspace struct {
	prev    []int
	next    []int
	version []int
	queue   *heap.Heap[candidate]
}

var workspacePool = sync.Pool{
	New: func() any {
		return &workspace{queue: heap.NewWith(compareCandidates)}
	},
}

func acquireWorkspace(size int) *workspace {
	work := workspacePool.Get().(*workspace)
	work.prev = resize(work.prev, size)
	work.next = resize(work.next, size)
	work.version = resize(work.version, size)
	work.queue.Clear()
	return work
}

func releaseWorkspace(work *workspace) {
	workspacePool.Put(work)
}

func resize(buffer []int, size int) []int {
	if cap(buffer) < size {
		return make([]int, size)
	}
	return buffer[:size]
}

// Encode returns the token IDs of piece.
func Encode(piece []byte, ranks Ranks) ([]int, error) {
	if len(piece) == 0 {
		return nil, nil
	}
	if rank, ranked := ranks.LookupRank(piece); ranked {
		return []int{rank}, nil
	}

	tokens := make([]int, 0, len(piece)/2+1)
	var unranked error
	merge(piece, ranks, func(start, end int) {
		if unranked != nil {
			return
		}
		rank, ranked := ranks.LookupRank(piece[start:end])
		if !ranked {
			unranked = fmt.Errorf("%w: %q at byte %d", ErrUnrankedSymbol, piece[start:end], start)
			return
		}
		tokens = append(tokens, rank)
	})
	if unranked != nil {
		return nil, unranked
	}
	return tokens, nil
}

// Spans returns the byte ranges of the symbols left after merging piece.
func Spans(piece []byte, ranks Ranks) []Span {
	if len(piece) == 0 {
		return nil
	}
	if _, ranked := ranks.LookupRank(piece); ranked {
		return []Span{{Start: 0, End: len(piece)}}
	}
	var spans []Span
	merge(piece, ranks, func(start, end int) {
		spans = append(spans, Span{Start: start, End: end})
	})
	return spans
}

func merge(piece []byte, ranks Ranks, visit func(start, end int)) {
	size := len(piece)
	work := acquireWorkspace(size)
	defer releaseWorkspace(work)

	prev, next, version := work.prev, work.next, work.version
	for slot := 0; slot < size; slot++ {
		prev[slot] = slot - 1
		next[slot] = slot + 1
		version[slot] = 0
	}
	next[size-1] = -1

	symbolEnd := func(slot int) int {
		if next[slot] == -1 {
			return size
		}
		return next[slot]
	}

	queuePair := func(left int) {
		if left < 0 {
			return
		}
		right := next[left]
		if right == -1 {
			return
		}
		rank, ranked := ranks.LookupRank(piece[left:symbolEnd(right)])
		if !ranked {
			return
		}
		work.queue.Push(candidate{
			rank:         rank,
			left:         left,
			leftVersion:  version[left],
			rightVersion: version[right],
		})
	}

	for slot := 0; slot < size-1; slot++ {
		queuePair(slot)
	}

	for !work.queue.Empty() {
		best, _ := work.queue.Pop()
		left := best.left
		right := next[left]
		if right == -1 || version[left] != best.leftVersion || version[right] != best.rightVersion {
			continue
		}

		afterRight := next[right]
		next[left] = afterRight
		if afterRight != -1 {
			prev[afterRight] = left
		}
		prev[right], next[right] = -1, -1
		version[left]++
		version[right]++

		queuePair(prev[left])
		queuePair(left)
	}

	for slot := 0; slot != -1; slot = next[slot] {
		visit(slot, symbolEnd(slot))
	}
}
