package encoding_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/tokencount/internal/encoding"
	"github.com/temirov/tokencount/internal/pretokenize"
	"github.com/temirov/tokencount/internal/vocabulary/vocabularytest"
)

const (
	endOfTextID = 100256
	fimPrefixID = 100258

	tokenHe   = 256
	tokenLl   = 257
	tokenHell = 258
	tokenOr   = 259
	tokenLd   = 260
)

var testMerges = []string{"he", "ll", "hell", "or", "ld"}

func newTestEncoder(t *testing.T, options encoding.Options) *encoding.Encoder {
	t.Helper()
	store := vocabularytest.Build(t, map[string]int{
		encoding.EndOfText: endOfTextID,
		encoding.FimPrefix: fimPrefixID,
	}, testMerges...)
	encoder, err := encoding.NewEncoder(encoding.Definition{Name: "test", Pattern: pretokenize.PatternCL100K}, store, options)
	require.NoError(t, err)
	return encoder
}

func TestEncodeRecognizesSpecialToken(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})

	tokens, err := encoder.EncodeWithOptions("hello<|endoftext|>world", encoding.EncodeOptions{Special: encoding.SpecialRecognize})
	require.NoError(t, err)
	require.Equal(t, []int{tokenHell, 'o', endOfTextID, 'w', tokenOr, tokenLd}, tokens)

	text, err := encoder.Decode(tokens)
	require.NoError(t, err)
	require.Equal(t, "hello<|endoftext|>world", text)
}

func TestEncodeLiteralSpecialText(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})
	text := "hello<|endoftext|>world"

	tokens, err := encoder.Encode(text)
	require.NoError(t, err)
	require.NotContains(t, tokens, endOfTextID)

	ordinary, err := encoder.EncodeOrdinary(text)
	require.NoError(t, err)
	require.Equal(t, tokens, ordinary)

	decoded, err := encoder.Decode(tokens)
	require.NoError(t, err)
	require.Equal(t, text, decoded)

	count, err := encoder.Count(text)
	require.NoError(t, err)
	require.Equal(t, len(tokens), count)
}

func TestEncodeRejectsDisallowedSpecial(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{DefaultSpecial: encoding.SpecialReject})

	_, err := encoder.Encode("before <|endoftext|> after")
	var disallowed *encoding.DisallowedSpecialError
	require.ErrorAs(t, err, &disallowed)
	require.Equal(t, encoding.EndOfText, disallowed.Literal)

	tokens, err := encoder.Encode("plain text")
	require.NoError(t, err)
	require.NotEmpty(t, tokens)
}

func TestEncodeRejectAllowsListedSpecials(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})
	options := encoding.EncodeOptions{Special: encoding.SpecialReject, Allowed: []string{encoding.EndOfText}}

	tokens, err := encoder.EncodeWithOptions("a<|endoftext|>", options)
	require.NoError(t, err)
	require.Equal(t, []int{'a', endOfTextID}, tokens)

	_, err = encoder.EncodeWithOptions("a<|fim_prefix|>", options)
	var disallowed *encoding.DisallowedSpecialError
	require.ErrorAs(t, err, &disallowed)
	require.Equal(t, encoding.FimPrefix, disallowed.Literal)
}

func TestEncodeRecognizeOnlyAllowedSpecials(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})

	tokens, err := encoder.EncodeWithOptions("<|fim_prefix|><|endoftext|>", encoding.EncodeOptions{
		Special: encoding.SpecialRecognize,
		Allowed: []string{encoding.FimPrefix},
	})
	require.NoError(t, err)
	require.Equal(t, fimPrefixID, tokens[0])
	require.NotContains(t, tokens, endOfTextID)
	require.Greater(t, len(tokens), 2)
}

func TestEncodeUnknownAllowedSpecial(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})
	_, err := encoder.EncodeWithOptions("x", encoding.EncodeOptions{Special: encoding.SpecialRecognize, Allowed: []string{"<|nope|>"}})
	require.ErrorIs(t, err, encoding.ErrUnknownSpecialToken)
}

func TestEncodeEmptyText(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})

	tokens, err := encoder.Encode("")
	require.NoError(t, err)
	require.Empty(t, tokens)

	count, err := encoder.Count("")
	require.NoError(t, err)
	require.Zero(t, count)

	text, err := encoder.Decode(nil)
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestEncodeRoundTrip(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{ChunkCacheSize: 64})
	inputs := []string{
		"hello world",
		"  the quick brown fox\n\njumps over 1234567 lazy dogs!!",
		"unicode: héllo wörld 你好 🌍",
		"tabs\tand\r\nwindows line endings",
		"it's they're we've I'm you'll he'd",
		strings.Repeat("hellohello ", 50),
	}
	for _, input := range inputs {
		tokens, err := encoder.Encode(input)
		require.NoError(t, err, input)
		decoded, err := encoder.DecodeWithOptions(tokens, encoding.DecodeOptions{Strict: true})
		require.NoError(t, err, input)
		require.Equal(t, input, decoded)
	}
}

func TestEncodeIsDeterministicWithAndWithoutCache(t *testing.T) {
	cached := newTestEncoder(t, encoding.Options{ChunkCacheSize: 8})
	uncached := newTestEncoder(t, encoding.Options{})
	text := strings.Repeat("hello world held the gold ", 20)

	expected, err := uncached.Encode(text)
	require.NoError(t, err)
	for attempt := 0; attempt < 3; attempt++ {
		tokens, encodeErr := cached.Encode(text)
		require.NoError(t, encodeErr)
		require.Equal(t, expected, tokens)
	}
}

func TestEncodeInputLimit(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{MaxInputBytes: 8})

	_, err := encoder.Encode("far too long for the limit")
	require.ErrorIs(t, err, encoding.ErrInputTooLarge)

	tokens, err := encoder.Encode("short")
	require.NoError(t, err)
	require.NotEmpty(t, tokens)
}

func TestDecodeUnknownToken(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})

	_, err := encoder.Decode([]int{'a', 99999})
	var decodeError *encoding.DecodeError
	require.ErrorAs(t, err, &decodeError)
	require.Equal(t, encoding.DecodeReasonUnknownToken, decodeError.Reason)
	require.Equal(t, 99999, decodeError.Token)
	require.Equal(t, 1, decodeError.Position)
}

func TestDecodeStrictAndLossy(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})
	tokens := []int{'a', 0xff, 'b'}

	_, err := encoder.DecodeWithOptions(tokens, encoding.DecodeOptions{Strict: true})
	var decodeError *encoding.DecodeError
	require.ErrorAs(t, err, &decodeError)
	require.Equal(t, encoding.DecodeReasonInvalidText, decodeError.Reason)
	require.Equal(t, 1, decodeError.Offset)

	text, err := encoder.DecodeWithOptions(tokens, encoding.DecodeOptions{})
	require.NoError(t, err)
	require.Equal(t, "a�b", text)

	raw, err := encoder.DecodeBytes(tokens)
	require.NoError(t, err)
	require.Equal(t, []byte{'a', 0xff, 'b'}, raw)

	strictEncoder := newTestEncoder(t, encoding.Options{StrictDecode: true})
	_, err = strictEncoder.Decode(tokens)
	require.True(t, errors.As(err, &decodeError))
}

func TestDecodeLossyReplacesEachInvalidByte(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})
	text, err := encoder.Decode([]int{0xe4, 0xbd, 'x', 0xff})
	require.NoError(t, err)
	require.Equal(t, "��x�", text)
}

func TestSingleTokenLookups(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})

	token, err := encoder.EncodeSingleToken([]byte("hell"))
	require.NoError(t, err)
	require.Equal(t, tokenHell, token)

	token, err = encoder.EncodeSingleToken([]byte(encoding.EndOfText))
	require.NoError(t, err)
	require.Equal(t, endOfTextID, token)

	_, err = encoder.EncodeSingleToken([]byte("hello"))
	require.ErrorIs(t, err, encoding.ErrNotSingleToken)

	sequence, err := encoder.DecodeSingleToken(tokenHe)
	require.NoError(t, err)
	require.Equal(t, []byte("he"), sequence)

	sequence, err = encoder.DecodeSingleToken(fimPrefixID)
	require.NoError(t, err)
	require.Equal(t, []byte(encoding.FimPrefix), sequence)

	_, err = encoder.DecodeSingleToken(-1)
	var decodeError *encoding.DecodeError
	require.ErrorAs(t, err, &decodeError)
}

func TestEncoderMetadata(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{})
	require.Equal(t, "test", encoder.Name())
	require.Equal(t, 256+len(testMerges)+2, encoder.VocabularySize())
	require.Equal(t, fimPrefixID, encoder.MaxTokenID())
	require.Equal(t, []string{encoding.FimPrefix, encoding.EndOfText}, encoder.SpecialTokens())
}

func TestEncodeBatch(t *testing.T) {
	encoder := newTestEncoder(t, encoding.Options{ChunkCacheSize: 32})
	texts := []string{"hello", "world", "", "hello world", "gold held"}

	for _, concurrency := range []int{0, 1, 4} {
		results, err := encoder.EncodeBatch(t.Context(), texts, concurrency)
		require.NoError(t, err)
		require.Len(t, results, len(texts))
		for textIndex, text := range texts {
			expected, encodeErr := encoder.Encode(text)
			require.NoError(t, encodeErr)
			require.Equal(t, expected, results[textIndex], "text %q", text)
		}
	}

	rejecting := newTestEncoder(t, encoding.Options{DefaultSpecial: encoding.SpecialReject})
	_, err := rejecting.EncodeBatch(t.Context(), []string{"fine", "bad <|endoftext|>"}, 2)
	var disallowed *encoding.DisallowedSpecialError
	require.ErrorAs(t, err, &disallowed)
}

func TestParseSpecialHandling(t *testing.T) {
	testCases := []struct {
		value       string
		expected    encoding.SpecialHandling
		expectError bool
	}{
		{value: "", expected: encoding.SpecialLiteral},
		{value: "literal", expected: encoding.SpecialLiteral},
		{value: " Recognize ", expected: encoding.SpecialRecognize},
		{value: "REJECT", expected: encoding.SpecialReject},
		{value: "allow", expectError: true},
	}
	for _, testCase := range testCases {
		handling, err := encoding.ParseSpecialHandling(testCase.value)
		if testCase.expectError {
			require.Error(t, err, testCase.value)
			continue
		}
		require.NoError(t, err, testCase.value)
		require.Equal(t, testCase.expected, handling)
	}
}

func TestNewEncoderRejectsBadConfiguration(t *testing.T) {
	store := vocabularytest.Build(t, nil)

	_, err := encoding.NewEncoder(encoding.Definition{Name: "bad", Pattern: `(`}, store, encoding.Options{})
	require.Error(t, err)

	_, err = encoding.NewEncoder(encoding.Definition{Name: "bad", Pattern: pretokenize.PatternCL100K}, store, encoding.Options{DefaultSpecial: "sometimes"})
	require.Error(t, err)

	_, err = encoding.NewEncoder(encoding.Definition{Name: "bad", Pattern: pretokenize.PatternCL100K}, nil, encoding.Options{})
	require.Error(t, err)
}
