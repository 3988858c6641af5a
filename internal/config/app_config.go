// Package config loads tokencount configuration from global and local YAML files.
package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/temirov/tokencount/internal/utils"
)

const (
	// TiktokenCacheDirectoryEnvironmentKey names the environment variable shared
	// with other tiktoken implementations for the vocabulary cache.
	TiktokenCacheDirectoryEnvironmentKey = "TIKTOKEN_CACHE_DIR"

	// DefaultConcurrency bounds parallel file counting when not configured.
	DefaultConcurrency = 4
	// DefaultChunkCacheSize is the number of chunks each encoder remembers.
	DefaultChunkCacheSize = 4096
	// DefaultMatchTimeout bounds each pre-tokenization match.
	DefaultMatchTimeout = 10 * time.Second

	applicationCacheDirectoryName = "tokencount"
	vocabularyCacheDirectoryName  = "vocabulary"
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration holds configuration defaults for every command.
// Pointer fields distinguish "not set" from a zero value so that local files
// override global ones only for the keys they name.
type ApplicationConfiguration struct {
	Encoding       string                  `mapstructure:"encoding"`
	Model          string                  `mapstructure:"model"`
	Engine         string                  `mapstructure:"engine"`
	Format         string                  `mapstructure:"format"`
	Special        string                  `mapstructure:"special"`
	StrictDecode   *bool                   `mapstructure:"strict_decode"`
	Clipboard      *bool                   `mapstructure:"clipboard"`
	Concurrency    *int                    `mapstructure:"concurrency"`
	ChunkCacheSize *int                    `mapstructure:"chunk_cache_size"`
	MaxInputBytes  *int                    `mapstructure:"max_input_bytes"`
	MatchTimeout   *time.Duration          `mapstructure:"match_timeout"`
	Vocabulary     VocabularyConfiguration `mapstructure:"vocabulary"`
}

// VocabularyConfiguration controls where vocabularies are cached and read from.
type VocabularyConfiguration struct {
	CacheDirectory string `mapstructure:"cache_directory"`
	// Files maps encoding names to local .tiktoken files used instead of downloads.
	Files map[string]string `mapstructure:"files"`
}

// LoadApplicationConfiguration loads configuration from global and local files.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", err)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, err := os.UserHomeDir(); err == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		globalConfig, loadErr := loadConfigurationFromPath(globalPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(globalConfig.resolveFilePaths(filepath.Dir(globalPath)))
	}

	localPath, resolveErr := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveErr != nil {
		return ApplicationConfiguration{}, resolveErr
	}
	if localPath != "" {
		localConfig, loadErr := loadConfigurationFromPath(localPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(localConfig.resolveFilePaths(filepath.Dir(localPath)))
	}

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		if workingDirectory == "" {
			absolute, err := filepath.Abs(explicitPath)
			if err != nil {
				return "", fmt.Errorf("resolve configuration path %s: %w", explicitPath, err)
			}
			return absolute, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statErr)
	}
	if info.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	if readErr := reader.ReadInConfig(); readErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readErr)
	}
	var config ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&config); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeErr)
	}
	return config, nil
}

// resolveFilePaths makes relative vocabulary paths relative to the directory
// of the configuration file that names them.
func (config ApplicationConfiguration) resolveFilePaths(baseDirectory string) ApplicationConfiguration {
	result := config
	if result.Vocabulary.CacheDirectory != "" && !filepath.IsAbs(result.Vocabulary.CacheDirectory) {
		result.Vocabulary.CacheDirectory = filepath.Join(baseDirectory, result.Vocabulary.CacheDirectory)
	}
	if len(result.Vocabulary.Files) > 0 {
		resolved := make(map[string]string, len(result.Vocabulary.Files))
		for encodingName, path := range result.Vocabulary.Files {
			if path != "" && !filepath.IsAbs(path) {
				path = filepath.Join(baseDirectory, path)
			}
			resolved[strings.ToLower(encodingName)] = path
		}
		result.Vocabulary.Files = resolved
	}
	return result
}

// Merge overlays override onto the receiver returning the combined configuration.
func (config ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := config
	if override.Encoding != "" {
		result.Encoding = override.Encoding
	}
	if override.Model != "" {
		result.Model = override.Model
	}
	if override.Engine != "" {
		result.Engine = override.Engine
	}
	if override.Format != "" {
		result.Format = override.Format
	}
	if override.Special != "" {
		result.Special = override.Special
	}
	if override.StrictDecode != nil {
		result.StrictDecode = cloneBool(override.StrictDecode)
	}
	if override.Clipboard != nil {
		result.Clipboard = cloneBool(override.Clipboard)
	}
	if override.Concurrency != nil {
		result.Concurrency = cloneInt(override.Concurrency)
	}
	if override.ChunkCacheSize != nil {
		result.ChunkCacheSize = cloneInt(override.ChunkCacheSize)
	}
	if override.MaxInputBytes != nil {
		result.MaxInputBytes = cloneInt(override.MaxInputBytes)
	}
	if override.MatchTimeout != nil {
		timeout := *override.MatchTimeout
		result.MatchTimeout = &timeout
	}
	result.Vocabulary = result.Vocabulary.merge(override.Vocabulary)
	return result
}

func (config VocabularyConfiguration) merge(override VocabularyConfiguration) VocabularyConfiguration {
	result := config
	if override.CacheDirectory != "" {
		result.CacheDirectory = override.CacheDirectory
	}
	if len(override.Files) > 0 {
		files := maps.Clone(result.Files)
		if files == nil {
			files = make(map[string]string, len(override.Files))
		}
		maps.Copy(files, override.Files)
		result.Files = files
	}
	return result
}

// EffectiveConcurrency returns the configured concurrency or DefaultConcurrency.
func (config ApplicationConfiguration) EffectiveConcurrency() int {
	if config.Concurrency == nil || *config.Concurrency < 1 {
		return DefaultConcurrency
	}
	return *config.Concurrency
}

// EffectiveChunkCacheSize returns the configured chunk cache size or
// DefaultChunkCacheSize. Zero disables the cache.
func (config ApplicationConfiguration) EffectiveChunkCacheSize() int {
	if config.ChunkCacheSize == nil || *config.ChunkCacheSize < 0 {
		return DefaultChunkCacheSize
	}
	return *config.ChunkCacheSize
}

// EffectiveMaxInputBytes returns the configured input limit; zero means unlimited.
func (config ApplicationConfiguration) EffectiveMaxInputBytes() int {
	if config.MaxInputBytes == nil || *config.MaxInputBytes < 0 {
		return 0
	}
	return *config.MaxInputBytes
}

// EffectiveMatchTimeout returns the configured match timeout or DefaultMatchTimeout.
func (config ApplicationConfiguration) EffectiveMatchTimeout() time.Duration {
	if config.MatchTimeout == nil || *config.MatchTimeout <= 0 {
		return DefaultMatchTimeout
	}
	return *config.MatchTimeout
}

// EffectiveStrictDecode reports whether decoding fails on invalid UTF-8.
func (config ApplicationConfiguration) EffectiveStrictDecode() bool {
	return config.StrictDecode != nil && *config.StrictDecode
}

// VocabularyCacheDirectory resolves where downloaded vocabularies are kept:
// the configured directory, then $TIKTOKEN_CACHE_DIR, then the user cache
// directory. It returns "" when none is available.
func (config ApplicationConfiguration) VocabularyCacheDirectory() string {
	if directory := strings.TrimSpace(config.Vocabulary.CacheDirectory); directory != "" {
		return directory
	}
	if directory := strings.TrimSpace(os.Getenv(TiktokenCacheDirectoryEnvironmentKey)); directory != "" {
		return directory
	}
	userCacheDirectory, err := os.UserCacheDir()
	if err != nil || userCacheDirectory == "" {
		return ""
	}
	return filepath.Join(userCacheDirectory, applicationCacheDirectoryName, vocabularyCacheDirectoryName)
}

func cloneBool(value *bool) *bool {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
