package tokenizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/temirov/tokencount/internal/encoding"
)

// Counter estimates token counts for text content.
type Counter interface {
	Name() string
	CountString(input string) (int, error)
}

// Engine selects the implementation behind a Counter.
type Engine string

const (
	// EngineNative counts with this module's encoder.
	EngineNative Engine = "native"
	// EngineReference counts with github.com/pkoukk/tiktoken-go, for parity checks.
	EngineReference Engine = "reference"
)

// Config captures tokenizer selection parameters provided by the CLI.
type Config struct {
	Model    string
	Encoding string
	Engine   Engine
	// Special is the special token handling of the reference engine. The
	// native engine uses the handling its registry was configured with.
	Special encoding.SpecialHandling
	Logger  *zap.Logger
}

// ParseEngine converts a configuration value to an Engine. The empty string selects EngineNative.
func ParseEngine(value string) (Engine, error) {
	switch engine := Engine(strings.ToLower(strings.TrimSpace(value))); engine {
	case "":
		return EngineNative, nil
	case EngineNative, EngineReference:
		return engine, nil
	default:
		return "", fmt.Errorf("unsupported engine %q (expected native or reference)", value)
	}
}

// ResolveEncodingName picks the encoding for cfg: an explicit encoding wins,
// then the encoding of the model, then the default encoding. Unknown models
// fall back to the default encoding.
func ResolveEncodingName(registry *encoding.Registry, cfg Config) (string, error) {
	if name := strings.TrimSpace(cfg.Encoding); name != "" {
		if _, err := registry.Definition(name); err != nil {
			return "", err
		}
		return name, nil
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return encoding.DefaultName, nil
	}
	name, err := registry.EncodingNameForModel(model)
	if errors.Is(err, encoding.ErrUnknownModel) {
		loggerOrNop(cfg.Logger).Warn("unknown model, using default encoding",
			zap.String("model", model),
			zap.String("encoding", encoding.DefaultName),
		)
		return encoding.DefaultName, nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// NewCounter returns a Counter for the encoding cfg resolves to, along with
// the encoding name.
func NewCounter(ctx context.Context, registry *encoding.Registry, cfg Config) (Counter, string, error) {
	if registry == nil {
		return nil, "", errors.New("nil encoding registry")
	}
	encodingName, resolveErr := ResolveEncodingName(registry, cfg)
	if resolveErr != nil {
		return nil, "", resolveErr
	}

	engine := cfg.Engine
	if engine == "" {
		engine = EngineNative
	}
	switch engine {
	case EngineNative:
		encoder, err := registry.GetEncoding(ctx, encodingName)
		if err != nil {
			return nil, "", fmt.Errorf("initialize tokenizer: %w", err)
		}
		return nativeCounter{encoder: encoder}, encodingName, nil
	case EngineReference:
		referenceEncoding, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			return nil, "", fmt.Errorf("initialize reference tokenizer %s: %w", encodingName, err)
		}
		definition, definitionErr := registry.Definition(encodingName)
		if definitionErr != nil {
			return nil, "", definitionErr
		}
		special := cfg.Special
		if special == "" {
			special = encoding.SpecialLiteral
		}
		return openAICounter{
			encoding: referenceEncoding,
			name:     encodingName,
			special:  special,
			specials: specialLiterals(definition),
		}, encodingName, nil
	default:
		return nil, "", fmt.Errorf("unsupported engine %q", engine)
	}
}

type nativeCounter struct {
	encoder *encoding.Encoder
}

func (counter nativeCounter) Name() string {
	return counter.encoder.Name()
}

func (counter nativeCounter) CountString(input string) (int, error) {
	return counter.encoder.Count(input)
}

func specialLiterals(definition encoding.Definition) []string {
	literals := make([]string, 0, len(definition.SpecialTokens))
	for literal := range definition.SpecialTokens {
		literals = append(literals, literal)
	}
	return literals
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
