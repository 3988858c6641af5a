package encoding

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxCachedPieceBytes keeps long pieces, which rarely repeat, out of the cache.
const maxCachedPieceBytes = 256

// chunkCache remembers the tokens of recently merged pieces. A nil cache
// never hits. Cached slices are shared and must not be modified.
type chunkCache struct {
	entries *lru.Cache[string, []int]
}

func newChunkCache(size int) (*chunkCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, []int](size)
	if err != nil {
		return nil, fmt.Errorf("create chunk cache: %w", err)
	}
	return &chunkCache{entries: entries}, nil
}

func (cache *chunkCache) get(piece string) ([]int, bool) {
	if cache == nil || len(piece) > maxCachedPieceBytes {
		return nil, false
	}
	return cache.entries.Get(piece)
}

func (cache *chunkCache) add(piece string, tokens []int) {
	if cache == nil || len(piece) > maxCachedPieceBytes {
		return
	}
	cache.entries.Add(piece, tokens)
}
