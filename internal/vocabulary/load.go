package vocabulary

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	maximumLineBytes = 1 << 20
	entryFieldCount  = 2
)

// LoadOptions configures how a .tiktoken stream becomes a Store.
type LoadOptions struct {
	// SourceName labels errors; defaults to "memory".
	SourceName string
	// SpecialTokens maps reserved literals to IDs outside the merge-derived range.
	SpecialTokens map[string]int
	// ExplicitSize, when positive, is the expected total token count
	// (merge-derived plus special) and the expected MaxTokenID+1.
	ExplicitSize int
}

// Load parses the .tiktoken format: one "base64(bytes) rank" entry per line,
// ranks strictly increasing. Blank lines are ignored.
func Load(reader io.Reader, options LoadOptions) (*Store, error) {
	sourceName := options.SourceName
	if sourceName == "" {
		sourceName = inMemorySourceName
	}

	builder := newStoreBuilder(0, len(options.SpecialTokens), options.ExplicitSize)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maximumLineBytes)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sequence, rank, parseErr := parseEntry(line)
		if parseErr != nil {
			return nil, &LoadError{Source: sourceName, Line: lineNumber, Err: parseErr}
		}
		if addErr := builder.add(sequence, rank); addErr != nil {
			return nil, &LoadError{Source: sourceName, Line: lineNumber, Err: addErr}
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, &LoadError{Source: sourceName, Line: lineNumber, Err: scanErr}
	}

	store, finishErr := builder.finish(options.SpecialTokens)
	if finishErr != nil {
		var loadError *LoadError
		if errors.As(finishErr, &loadError) && loadError.Source == "" {
			loadError.Source = sourceName
		}
		return nil, finishErr
	}

	if options.ExplicitSize > 0 {
		if store.Len() != options.ExplicitSize || store.MaxTokenID() != options.ExplicitSize-1 {
			return nil, &LoadError{
				Source: sourceName,
				Err: fmt.Errorf("%w: expected %d tokens, loaded %d with max id %d",
					ErrVocabularySize, options.ExplicitSize, store.Len(), store.MaxTokenID()),
			}
		}
	}

	return store, nil
}

// LoadFromSource opens source and loads it with options. The source name
// replaces options.SourceName when the latter is empty.
func LoadFromSource(ctx context.Context, source Source, options LoadOptions) (*Store, error) {
	if source == nil {
		return nil, &LoadError{Source: options.SourceName, Err: errors.New("nil vocabulary source")}
	}
	if options.SourceName == "" {
		options.SourceName = source.Name()
	}
	readCloser, openErr := source.Open(ctx)
	if openErr != nil {
		return nil, &LoadError{Source: options.SourceName, Err: openErr}
	}
	defer readCloser.Close()
	return Load(readCloser, options)
}

func parseEntry(line string) ([]byte, int, error) {
	fields := strings.Fields(line)
	if len(fields) != entryFieldCount {
		return nil, 0, fmt.Errorf("%w: expected %d fields, found %d", ErrMalformedEntry, entryFieldCount, len(fields))
	}
	sequence, decodeErr := base64.StdEncoding.DecodeString(fields[0])
	if decodeErr != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedEntry, decodeErr)
	}
	rank, rankErr := strconv.Atoi(fields[1])
	if rankErr != nil {
		return nil, 0, fmt.Errorf("%w: rank %q is not an integer", ErrMalformedEntry, fields[1])
	}
	return sequence, rank, nil
}
