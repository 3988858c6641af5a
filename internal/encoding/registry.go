package encoding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/temirov/tokencount/internal/vocabulary"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Definitions defaults to BuiltinDefinitions.
	Definitions []Definition
	// CacheDirectory stores downloaded vocabularies. Empty disables the disk cache.
	CacheDirectory string
	// VocabularyFiles maps encoding names to local vocabulary files that
	// replace the definition's download.
	VocabularyFiles map[string]string
	HTTPClient      *http.Client
	Logger          *zap.Logger
	Encoder         Options
}

// Registry resolves encoding names to encoders. Each encoding is loaded on
// first request and shared afterwards. It is safe for concurrent use.
type Registry struct {
	definitions map[string]Definition
	options     RegistryOptions
	logger      *zap.Logger

	loadGroup singleflight.Group
	mutex     sync.RWMutex
	encoders  map[string]*Encoder
}

// NewRegistry returns a Registry over the configured definitions.
func NewRegistry(options RegistryOptions) *Registry {
	definitionList := options.Definitions
	if definitionList == nil {
		definitionList = BuiltinDefinitions()
	}
	definitions := make(map[string]Definition, len(definitionList))
	for _, definition := range definitionList {
		definitions[definition.Name] = definition.clone()
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		definitions: definitions,
		options:     options,
		logger:      logger,
		encoders:    make(map[string]*Encoder),
	}
}

// Names lists the registered encoding names in lexical order.
func (registry *Registry) Names() []string {
	return sortedNames(registry.definitions)
}

// Definition returns the definition registered under name.
func (registry *Registry) Definition(name string) (Definition, error) {
	definition, found := registry.definitions[name]
	if !found {
		return Definition{}, &UnknownEncodingError{Name: name, Known: registry.Names()}
	}
	return definition.clone(), nil
}

// Source returns where the vocabulary of an encoding is read from.
func (registry *Registry) Source(name string) (vocabulary.Source, error) {
	definition, err := registry.Definition(name)
	if err != nil {
		return nil, err
	}
	if path := strings.TrimSpace(registry.options.VocabularyFiles[name]); path != "" {
		return vocabulary.FileSource{Path: path}, nil
	}
	if definition.VocabularyFile != "" {
		return vocabulary.FileSource{Path: definition.VocabularyFile}, nil
	}
	if definition.VocabularyURL == "" {
		return nil, fmt.Errorf("encoding %s has no vocabulary source", name)
	}
	return vocabulary.RemoteSource{
		URL:            definition.VocabularyURL,
		SHA256:         definition.VocabularySHA256,
		CacheDirectory: registry.options.CacheDirectory,
		Client:         registry.options.HTTPClient,
		Logger:         registry.logger,
	}, nil
}

// Available reports whether an encoding can be loaded without a download.
func (registry *Registry) Available(name string) bool {
	source, err := registry.Source(name)
	if err != nil {
		return false
	}
	switch typedSource := source.(type) {
	case vocabulary.RemoteSource:
		return typedSource.Cached()
	default:
		return true
	}
}

// GetEncoding returns the encoder for name, loading its vocabulary on first use.
func (registry *Registry) GetEncoding(ctx context.Context, name string) (*Encoder, error) {
	if encoder, loaded := registry.loaded(name); loaded {
		return encoder, nil
	}
	definition, definitionErr := registry.Definition(name)
	if definitionErr != nil {
		return nil, definitionErr
	}

	// The shared load outlives any single caller; each caller stops waiting
	// when its own context ends.
	loadContext := context.WithoutCancel(ctx)
	resultChannel := registry.loadGroup.DoChan(name, func() (any, error) {
		if encoder, loaded := registry.loaded(name); loaded {
			return encoder, nil
		}
		encoder, loadErr := registry.load(loadContext, definition)
		if loadErr != nil {
			return nil, loadErr
		}
		registry.mutex.Lock()
		registry.encoders[name] = encoder
		registry.mutex.Unlock()
		return encoder, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChannel:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*Encoder), nil
	}
}

func (registry *Registry) loaded(name string) (*Encoder, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	encoder, loaded := registry.encoders[name]
	return encoder, loaded
}

func (registry *Registry) load(ctx context.Context, definition Definition) (*Encoder, error) {
	source, sourceErr := registry.Source(definition.Name)
	if sourceErr != nil {
		return nil, sourceErr
	}
	startTime := time.Now()
	store, loadErr := vocabulary.LoadFromSource(ctx, source, vocabulary.LoadOptions{
		SpecialTokens: definition.SpecialTokens,
		ExplicitSize:  definition.ExplicitVocabularySize,
	})
	if loadErr != nil {
		return nil, fmt.Errorf("load encoding %s: %w", definition.Name, loadErr)
	}
	registry.logger.Debug("loaded vocabulary",
		zap.String("encoding", definition.Name),
		zap.String("source", source.Name()),
		zap.Int("tokens", store.Len()),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return NewEncoder(definition, store, registry.options.Encoder)
}

// EncodingNameForModel returns the encoding used by a model. Exact model
// names are matched first, then the longest known model-family prefix.
// Encoding names are accepted as their own model.
func (registry *Registry) EncodingNameForModel(model string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if _, found := registry.definitions[normalized]; found {
		return normalized, nil
	}
	if name, found := tiktoken.MODEL_TO_ENCODING[normalized]; found {
		return name, nil
	}
	bestPrefix, bestName := "", ""
	for prefix, name := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(normalized, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix, bestName = prefix, name
		}
	}
	if bestName == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return bestName, nil
}
