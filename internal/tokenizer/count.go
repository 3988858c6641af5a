package tokenizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/temirov/tokencount/internal/utils"
)

// CountResult captures the outcome of counting a file or byte slice.
type CountResult struct {
	Tokens  int
	Counted bool
}

// FileCount is the CountResult of one file.
type FileCount struct {
	Path      string
	SizeBytes int64
	CountResult
}

// CountBytes estimates tokens for the provided data using counter.
func CountBytes(counter Counter, data []byte) (CountResult, error) {
	if counter == nil {
		return CountResult{}, errors.New("nil tokenizer counter")
	}
	if len(data) == 0 {
		tokens, err := counter.CountString("")
		if err != nil {
			return CountResult{}, err
		}
		return CountResult{Tokens: tokens, Counted: true}, nil
	}
	if utils.IsBinary(data) {
		return CountResult{Counted: false}, nil
	}
	if !utf8.Valid(data) {
		return CountResult{Counted: false}, nil
	}
	tokens, err := counter.CountString(string(data))
	if err != nil {
		return CountResult{}, err
	}
	return CountResult{Tokens: tokens, Counted: true}, nil
}

// CountFile reads the file at path and estimates its token count. Files that
// look binary from their first bytes are skipped without reading the rest.
func CountFile(counter Counter, path string) (CountResult, error) {
	if counter == nil {
		return CountResult{}, errors.New("nil tokenizer counter")
	}
	if utils.IsFileBinary(path) {
		return CountResult{Counted: false}, nil
	}
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return CountResult{}, readErr
	}
	return CountBytes(counter, data)
}

// CountFiles counts every path, at most concurrency files at a time, and
// returns the results in the order of paths.
func CountFiles(ctx context.Context, counter Counter, paths []string, concurrency int) ([]FileCount, error) {
	results := make([]FileCount, len(paths))
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(max(concurrency, 1))
	for pathIndex, path := range paths {
		group.Go(func() error {
			if err := groupContext.Err(); err != nil {
				return err
			}
			info, statErr := os.Stat(path)
			if statErr != nil {
				return fmt.Errorf("count %s: %w", path, statErr)
			}
			if info.IsDir() {
				return fmt.Errorf("count %s: is a directory", path)
			}
			result, countErr := CountFile(counter, path)
			if countErr != nil {
				return fmt.Errorf("count %s: %w", path, countErr)
			}
			results[pathIndex] = FileCount{Path: path, SizeBytes: info.Size(), CountResult: result}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
