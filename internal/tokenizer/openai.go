package tokenizer

import (
	"errors"

	"github.com/pkoukk/tiktoken-go"

	"github.com/temirov/tokencount/internal/encoding"
	"github.com/temirov/tokencount/internal/pretokenize"
)

const allSpecialTokens = "all"

type openAICounter struct {
	encoding *tiktoken.Tiktoken
	name     string
	special  encoding.SpecialHandling
	specials []string
}

func (counter openAICounter) Name() string {
	return counter.name
}

func (counter openAICounter) CountString(input string) (int, error) {
	var allowed []string
	switch counter.special {
	case encoding.SpecialRecognize:
		allowed = []string{allSpecialTokens}
	case encoding.SpecialReject:
		if literal, found := pretokenize.FindSpecial(input, counter.specials); found {
			return 0, &encoding.DisallowedSpecialError{Literal: literal}
		}
	}
	if counter.encoding == nil {
		return 0, errors.New("nil tiktoken encoder")
	}
	tokenIDs := counter.encoding.Encode(input, allowed, nil)
	return len(tokenIDs), nil
}
