package encoding

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/temirov/tokencount/internal/bpe"
	"github.com/temirov/tokencount/internal/pretokenize"
	"github.com/temirov/tokencount/internal/vocabulary"
)

// SpecialHandling selects how special token literals in input text are treated.
type SpecialHandling string

const (
	// SpecialLiteral encodes special literals as ordinary text.
	SpecialLiteral SpecialHandling = "literal"
	// SpecialRecognize maps allowed special literals to their IDs.
	SpecialRecognize SpecialHandling = "recognize"
	// SpecialReject maps allowed special literals to their IDs and fails on any other.
	SpecialReject SpecialHandling = "reject"
)

// ParseSpecialHandling converts a configuration value to a SpecialHandling.
// The empty string selects SpecialLiteral.
func ParseSpecialHandling(value string) (SpecialHandling, error) {
	switch handling := SpecialHandling(strings.ToLower(strings.TrimSpace(value))); handling {
	case "":
		return SpecialLiteral, nil
	case SpecialLiteral, SpecialRecognize, SpecialReject:
		return handling, nil
	default:
		return "", fmt.Errorf("unsupported special token handling %q (expected literal, recognize or reject)", value)
	}
}

// EncodeOptions controls one encode call.
type EncodeOptions struct {
	// Special defaults to the encoder's configured handling.
	Special SpecialHandling
	// Allowed limits which special literals are mapped to IDs. Nil allows
	// every literal under SpecialRecognize and none under SpecialReject.
	Allowed []string
}

// DecodeOptions controls one decode call.
type DecodeOptions struct {
	// Strict fails on bytes that are not valid UTF-8 instead of replacing them.
	Strict bool
}

// Options configures an Encoder.
type Options struct {
	DefaultSpecial SpecialHandling
	StrictDecode   bool
	// ChunkCacheSize is the number of pre-tokenized chunks remembered. Zero disables the cache.
	ChunkCacheSize int
	// MaxInputBytes rejects longer input with ErrInputTooLarge. Zero means unlimited.
	MaxInputBytes int
	// MatchTimeout bounds each pre-tokenization match. Zero means unbounded.
	MatchTimeout time.Duration
}

// Encoder encodes and decodes text for one encoding. It is safe for concurrent use.
type Encoder struct {
	name     string
	store    *vocabulary.Store
	splitter *pretokenize.Splitter
	specials []string
	cache    *chunkCache
	options  Options
}

// NewEncoder builds an Encoder over store using the pattern of definition.
func NewEncoder(definition Definition, store *vocabulary.Store, options Options) (*Encoder, error) {
	if store == nil {
		return nil, fmt.Errorf("encoding %s: nil vocabulary", definition.Name)
	}
	if options.DefaultSpecial == "" {
		options.DefaultSpecial = SpecialLiteral
	}
	if _, err := ParseSpecialHandling(string(options.DefaultSpecial)); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", definition.Name, err)
	}
	splitter, splitterErr := pretokenize.New(definition.Pattern, pretokenize.Options{MatchTimeout: options.MatchTimeout})
	if splitterErr != nil {
		return nil, fmt.Errorf("encoding %s: %w", definition.Name, splitterErr)
	}
	cache, cacheErr := newChunkCache(options.ChunkCacheSize)
	if cacheErr != nil {
		return nil, fmt.Errorf("encoding %s: %w", definition.Name, cacheErr)
	}
	return &Encoder{
		name:     definition.Name,
		store:    store,
		splitter: splitter,
		specials: store.SpecialTokens(),
		cache:    cache,
		options:  options,
	}, nil
}

// Name returns the encoding name.
func (encoder *Encoder) Name() string {
	return encoder.name
}

// VocabularySize returns the number of tokens including special tokens.
func (encoder *Encoder) VocabularySize() int {
	return encoder.store.Len()
}

// MaxTokenID returns the largest token ID of the vocabulary.
func (encoder *Encoder) MaxTokenID() int {
	return encoder.store.MaxTokenID()
}

// SpecialTokens lists the special literals in matching priority order.
func (encoder *Encoder) SpecialTokens() []string {
	return slices.Clone(encoder.specials)
}

// Vocabulary returns the underlying store.
func (encoder *Encoder) Vocabulary() *vocabulary.Store {
	return encoder.store
}

// Encode encodes text with the encoder's default special token handling.
func (encoder *Encoder) Encode(text string) ([]int, error) {
	return encoder.EncodeWithOptions(text, EncodeOptions{})
}

// EncodeOrdinary encodes text treating special literals as ordinary text.
func (encoder *Encoder) EncodeOrdinary(text string) ([]int, error) {
	return encoder.EncodeWithOptions(text, EncodeOptions{Special: SpecialLiteral})
}

// EncodeWithOptions encodes text.
func (encoder *Encoder) EncodeWithOptions(text string, options EncodeOptions) ([]int, error) {
	if limit := encoder.options.MaxInputBytes; limit > 0 && len(text) > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the limit of %d", ErrInputTooLarge, len(text), limit)
	}
	recognized, rejected, err := encoder.specialSets(options)
	if err != nil {
		return nil, err
	}

	chunks := pretokenize.SplitSpecial(text, recognized)
	if len(rejected) > 0 {
		for _, chunk := range chunks {
			if chunk.Special {
				continue
			}
			if literal, found := pretokenize.FindSpecial(chunk.Text, rejected); found {
				return nil, &DisallowedSpecialError{Literal: literal}
			}
		}
	}

	tokens := make([]int, 0, len(text)/4+1)
	for _, chunk := range chunks {
		if chunk.Special {
			token, _ := encoder.store.LookupSpecial(chunk.Text)
			tokens = append(tokens, token)
			continue
		}
		pieces, splitErr := encoder.splitter.Split(chunk.Text)
		if splitErr != nil {
			return nil, fmt.Errorf("encoding %s: %w", encoder.name, splitErr)
		}
		for _, piece := range pieces {
			pieceTokens, pieceErr := encoder.encodePiece(piece)
			if pieceErr != nil {
				return nil, fmt.Errorf("encoding %s: %w", encoder.name, pieceErr)
			}
			tokens = append(tokens, pieceTokens...)
		}
	}
	return tokens, nil
}

// Count returns the number of tokens Encode produces for text.
func (encoder *Encoder) Count(text string) (int, error) {
	tokens, err := encoder.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(tokens), nil
}

// EncodeBatch encodes texts concurrently, at most concurrency at a time.
// A concurrency below one runs one text at a time.
func (encoder *Encoder) EncodeBatch(ctx context.Context, texts []string, concurrency int) ([][]int, error) {
	results := make([][]int, len(texts))
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(max(concurrency, 1))
	for textIndex, text := range texts {
		group.Go(func() error {
			if err := groupContext.Err(); err != nil {
				return err
			}
			tokens, err := encoder.Encode(text)
			if err != nil {
				return fmt.Errorf("text %d: %w", textIndex, err)
			}
			results[textIndex] = tokens
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// EncodeSingleToken returns the ID of bytes that form exactly one token,
// merge-derived or special.
func (encoder *Encoder) EncodeSingleToken(sequence []byte) (int, error) {
	if token, found := encoder.store.LookupRank(sequence); found {
		return token, nil
	}
	if token, found := encoder.store.LookupSpecial(string(sequence)); found {
		return token, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrNotSingleToken, sequence)
}

// DecodeSingleToken returns the bytes of one token ID.
func (encoder *Encoder) DecodeSingleToken(token int) ([]byte, error) {
	sequence, found := encoder.tokenBytes(token)
	if !found {
		return nil, &DecodeError{Reason: DecodeReasonUnknownToken, Token: token}
	}
	return slices.Clone(sequence), nil
}

// DecodeBytes concatenates the bytes of tokens.
func (encoder *Encoder) DecodeBytes(tokens []int) ([]byte, error) {
	decoded := make([]byte, 0, len(tokens)*4)
	for position, token := range tokens {
		sequence, found := encoder.tokenBytes(token)
		if !found {
			return nil, &DecodeError{Reason: DecodeReasonUnknownToken, Token: token, Position: position}
		}
		decoded = append(decoded, sequence...)
	}
	return decoded, nil
}

// Decode decodes tokens with the encoder's default strictness.
func (encoder *Encoder) Decode(tokens []int) (string, error) {
	return encoder.DecodeWithOptions(tokens, DecodeOptions{Strict: encoder.options.StrictDecode})
}

// DecodeWithOptions decodes tokens to text. In lossy mode every byte that is
// not part of a valid UTF-8 sequence becomes U+FFFD.
func (encoder *Encoder) DecodeWithOptions(tokens []int, options DecodeOptions) (string, error) {
	decoded, err := encoder.DecodeBytes(tokens)
	if err != nil {
		return "", err
	}
	if utf8.Valid(decoded) {
		return string(decoded), nil
	}
	if options.Strict {
		return "", &DecodeError{Reason: DecodeReasonInvalidText, Offset: firstInvalidOffset(decoded)}
	}
	return replaceInvalidBytes(decoded), nil
}

func (encoder *Encoder) tokenBytes(token int) ([]byte, bool) {
	if sequence, found := encoder.store.LookupBytes(token); found {
		return sequence, true
	}
	if literal, found := encoder.store.SpecialLiteral(token); found {
		return []byte(literal), true
	}
	return nil, false
}

func (encoder *Encoder) encodePiece(piece string) ([]int, error) {
	if tokens, cached := encoder.cache.get(piece); cached {
		return tokens, nil
	}
	tokens, err := bpe.Encode([]byte(piece), encoder.store)
	if err != nil {
		return nil, err
	}
	encoder.cache.add(piece, tokens)
	return tokens, nil
}

// specialSets resolves which special literals are mapped to IDs and which
// must not appear, both in priority order.
func (encoder *Encoder) specialSets(options EncodeOptions) ([]string, []string, error) {
	handling := options.Special
	if handling == "" {
		handling = encoder.options.DefaultSpecial
	}
	for _, literal := range options.Allowed {
		if _, found := encoder.store.LookupSpecial(literal); !found {
			return nil, nil, fmt.Errorf("encoding %s: %w: %q", encoder.name, ErrUnknownSpecialToken, literal)
		}
	}

	switch handling {
	case SpecialLiteral:
		return nil, nil, nil
	case SpecialRecognize:
		if options.Allowed == nil {
			return encoder.specials, nil, nil
		}
		return encoder.filterSpecials(options.Allowed, true), nil, nil
	case SpecialReject:
		return encoder.filterSpecials(options.Allowed, true), encoder.filterSpecials(options.Allowed, false), nil
	default:
		return nil, nil, fmt.Errorf("encoding %s: unsupported special token handling %q", encoder.name, handling)
	}
}

// filterSpecials returns the encoder's specials, in priority order, that are
// (keep == true) or are not (keep == false) in literals.
func (encoder *Encoder) filterSpecials(literals []string, keep bool) []string {
	var filtered []string
	for _, special := range encoder.specials {
		if slices.Contains(literals, special) == keep {
			filtered = append(filtered, special)
		}
	}
	return filtered
}

func firstInvalidOffset(data []byte) int {
	for offset := 0; offset < len(data); {
		decoded, width := utf8.DecodeRune(data[offset:])
		if decoded == utf8.RuneError && width == 1 {
			return offset
		}
		offset += width
	}
	return len(data)
}

func replaceInvalidBytes(data []byte) string {
	var builder strings.Builder
	builder.Grow(len(data) + 8)
	for offset := 0; offset < len(data); {
		decoded, width := utf8.DecodeRune(data[offset:])
		if decoded == utf8.RuneError && width == 1 {
			builder.WriteRune(utf8.RuneError)
		} else {
			builder.Write(data[offset : offset+width])
		}
		offset += width
	}
	return builder.String()
}
