// Package encoding turns text into token IDs and back using a named
// byte-pair-encoding configuration.
package encoding

import (
	"maps"
	"slices"

	"github.com/pkoukk/tiktoken-go"

	"github.com/temirov/tokencount/internal/pretokenize"
)

// Built-in encoding names.
const (
	NameR50KBase   = tiktoken.MODEL_R50K_BASE
	NameP50KBase   = tiktoken.MODEL_P50K_BASE
	NameP50KEdit   = tiktoken.MODEL_P50K_EDIT
	NameCL100KBase = tiktoken.MODEL_CL100K_BASE
	NameO200KBase  = tiktoken.MODEL_O200K_BASE

	// DefaultName is used when neither an encoding nor a model is requested.
	DefaultName = NameCL100KBase
)

// Special token literals shared by the built-in encodings.
const (
	EndOfText   = tiktoken.ENDOFTEXT
	FimPrefix   = tiktoken.FIM_PREFIX
	FimMiddle   = tiktoken.FIM_MIDDLE
	FimSuffix   = tiktoken.FIM_SUFFIX
	EndOfPrompt = tiktoken.ENDOFPROMPT
)

const vocabularyBaseURL = "https://openaipublic.blob.core.windows.net/encodings/"

// Definition is the static configuration of one encoding: where its
// vocabulary comes from, how text is pre-tokenized and which special tokens
// it reserves.
type Definition struct {
	Name string
	// Pattern is the pre-tokenization regular expression.
	Pattern string
	// VocabularyURL is downloaded when no local vocabulary file is configured.
	VocabularyURL string
	// VocabularySHA256 pins the downloaded content. Empty disables verification.
	VocabularySHA256 string
	// VocabularyFile, when set, is read instead of VocabularyURL.
	VocabularyFile string
	SpecialTokens  map[string]int
	// ExplicitVocabularySize, when positive, must equal the loaded token count.
	ExplicitVocabularySize int
}

var builtinDefinitions = []Definition{
	{
		Name:                   NameR50KBase,
		Pattern:                pretokenize.PatternR50K,
		VocabularyURL:          vocabularyBaseURL + "r50k_base.tiktoken",
		VocabularySHA256:       "306cd27f03c1a714eca7108e03d66b7dc042abe8c258b44c199a7ed9838dd930",
		SpecialTokens:          map[string]int{EndOfText: 50256},
		ExplicitVocabularySize: 50257,
	},
	{
		Name:                   NameP50KBase,
		Pattern:                pretokenize.PatternR50K,
		VocabularyURL:          vocabularyBaseURL + "p50k_base.tiktoken",
		VocabularySHA256:       "94b5ca7dff4d00767bc256fdd1b27e5b17361d7b8a5f968547f9f23eb70d2069",
		SpecialTokens:          map[string]int{EndOfText: 50256},
		ExplicitVocabularySize: 50281,
	},
	{
		Name:             NameP50KEdit,
		Pattern:          pretokenize.PatternR50K,
		VocabularyURL:    vocabularyBaseURL + "p50k_base.tiktoken",
		VocabularySHA256: "94b5ca7dff4d00767bc256fdd1b27e5b17361d7b8a5f968547f9f23eb70d2069",
		SpecialTokens: map[string]int{
			EndOfText: 50256,
			FimPrefix: 50281,
			FimMiddle: 50282,
			FimSuffix: 50283,
		},
	},
	{
		Name:             NameCL100KBase,
		Pattern:          pretokenize.PatternCL100K,
		VocabularyURL:    vocabularyBaseURL + "cl100k_base.tiktoken",
		VocabularySHA256: "223921b76ee99bde995b7ff738513eef100fb51d18c93597a113bcffe865b2a7",
		SpecialTokens: map[string]int{
			EndOfText:   100257,
			FimPrefix:   100258,
			FimMiddle:   100259,
			FimSuffix:   100260,
			EndOfPrompt: 100276,
		},
	},
	{
		Name:             NameO200KBase,
		Pattern:          pretokenize.PatternO200K,
		VocabularyURL:    vocabularyBaseURL + "o200k_base.tiktoken",
		VocabularySHA256: "446a9538cb6c348e3516120d7c08b09f57c36495e2acfffe59a5bf8b0cfb1a2d",
		SpecialTokens: map[string]int{
			EndOfText:   199999,
			EndOfPrompt: 200018,
		},
	},
}

// BuiltinDefinitions returns copies of the tiktoken encodings this package knows.
func BuiltinDefinitions() []Definition {
	definitions := make([]Definition, 0, len(builtinDefinitions))
	for _, definition := range builtinDefinitions {
		definitions = append(definitions, definition.clone())
	}
	return definitions
}

func (definition Definition) clone() Definition {
	definition.SpecialTokens = maps.Clone(definition.SpecialTokens)
	return definition
}

// sortedNames returns the definition names in lexical order.
func sortedNames(definitions map[string]Definition) []string {
	return slices.Sorted(maps.Keys(definitions))
}
