// Package pretokenize splits text into the chunks a BPE merge runs over.
package pretokenize

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// Pre-tokenization patterns of the tiktoken encodings.
const (
	// PatternR50K splits r50k_base, p50k_base and p50k_edit text.
	PatternR50K = `'(?:[sdmt]|ll|ve|re)| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`
	// PatternCL100K splits cl100k_base text. Digit runs are capped at three per chunk.
	PatternCL100K = `(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`
	// PatternO200K splits o200k_base text.
	PatternO200K = `[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]*[\p{Ll}\p{Lm}\p{Lo}\p{M}]+(?i:'s|'t|'re|'ve|'m|'ll|'d)?` +
		`|[^\r\n\p{L}\p{N}]?[\p{Lu}\p{Lt}\p{Lm}\p{Lo}\p{M}]+[\p{Ll}\p{Lm}\p{Lo}\p{M}]*(?i:'s|'t|'re|'ve|'m|'ll|'d)?` +
		`|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n/]*|\s*[\r\n]+|\s+(?!\S)|\s+`
)

// Options tunes a Splitter.
type Options struct {
	// MatchTimeout bounds a single regular expression match. Zero means no bound.
	MatchTimeout time.Duration
}

// Splitter cuts text into chunks with a regular expression. It is safe for
// concurrent use.
type Splitter struct {
	pattern *regexp2.Regexp
}

// Chunk is a piece of input text. Special chunks are whole special-token
// literals that bypass merging.
type Chunk struct {
	Text    string
	Special bool
}

// New compiles pattern.
func New(pattern string, options Options) (*Splitter, error) {
	compiled, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile pre-tokenization pattern: %w", err)
	}
	if options.MatchTimeout > 0 {
		compiled.MatchTimeout = options.MatchTimeout
	}
	return &Splitter{pattern: compiled}, nil
}

// Split returns the chunks of text in order. The chunks concatenate back to
// text byte for byte: bytes that are not valid UTF-8 are matched as U+FFFD but
// kept verbatim in the chunk, and text between matches becomes its own chunk.
func (splitter *Splitter) Split(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	runes, offsets := decodeRunes(text)

	var chunks []string
	consumed := 0
	match, matchErr := splitter.pattern.FindRunesMatch(runes)
	for match != nil {
		if match.Length > 0 {
			if match.Index > consumed {
				chunks = append(chunks, text[offsets[consumed]:offsets[match.Index]])
			}
			end := match.Index + match.Length
			chunks = append(chunks, text[offsets[match.Index]:offsets[end]])
			consumed = end
		}
		match, matchErr = splitter.pattern.FindNextMatch(match)
	}
	if matchErr != nil {
		return nil, fmt.Errorf("split text: %w", matchErr)
	}
	if consumed < len(runes) {
		chunks = append(chunks, text[offsets[consumed]:])
	}
	return chunks, nil
}

// decodeRunes returns the runes of text and the byte offset where each one
// starts, plus a final entry holding len(text).
func decodeRunes(text string) ([]rune, []int) {
	runes := make([]rune, 0, len(text))
	offsets := make([]int, 0, len(text)+1)
	for offset := 0; offset < len(text); {
		decoded, width := utf8.DecodeRuneInString(text[offset:])
		runes = append(runes, decoded)
		offsets = append(offsets, offset)
		offset += width
	}
	offsets = append(offsets, len(text))
	return runes, offsets
}

// SplitSpecial carves every occurrence of the given special literals out of
// text. Literals are applied in order, so an earlier literal claims its
// occurrences before later ones are searched for. With no literals the whole
// text is a single ordinary chunk.
func SplitSpecial(text string, specials []string) []Chunk {
	if text == "" {
		return nil
	}
	chunks := []Chunk{{Text: text}}
	for _, special := range specials {
		if special == "" {
			continue
		}
		for index := 0; index < len(chunks); index++ {
			chunk := chunks[index]
			if chunk.Special {
				continue
			}
			position := strings.Index(chunk.Text, special)
			if position < 0 {
				continue
			}

			var middle []Chunk
			if position > 0 {
				middle = append(middle, Chunk{Text: chunk.Text[:position]})
			}
			middle = append(middle, Chunk{Text: special, Special: true})
			if rest := chunk.Text[position+len(special):]; rest != "" {
				middle = append(middle, Chunk{Text: rest})
			}
			chunks = slices.Replace(chunks, index, index+1, middle...)
			if position > 0 {
				index++
			}
		}
	}
	return chunks
}

// FindSpecial returns the first literal of specials, in order, that occurs in text.
func FindSpecial(text string, specials []string) (string, bool) {
	for _, special := range specials {
		if special != "" && strings.Contains(text, special) {
			return special, true
		}
	}
	return "", false
}
