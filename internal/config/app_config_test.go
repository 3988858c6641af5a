package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/temirov/tokencount/internal/utils"
)

type configTestCase struct {
	name              string
	globalContent     string
	localContent      string
	explicitPath      string
	explicitContent   string
	expectEncoding    string
	expectModel       string
	expectFormat      string
	expectStrict      *bool
	expectConcurrency int
	expectTimeout     time.Duration
}

func boolPointer(value bool) *bool {
	pointer := value
	return &pointer
}

func intPointer(value int) *int {
	pointer := value
	return &pointer
}

func writeConfigurationFiles(t *testing.T, testCase configTestCase) (string, string) {
	t.Helper()
	homeDir := t.TempDir()
	workingDir := t.TempDir()
	configDir := filepath.Join(homeDir, utils.GlobalConfigDirectoryName)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if testCase.globalContent != "" {
		globalPath := filepath.Join(configDir, utils.ConfigFileName)
		if err := os.WriteFile(globalPath, []byte(testCase.globalContent), 0o600); err != nil {
			t.Fatalf("write global config: %v", err)
		}
	}
	if testCase.localContent != "" {
		localPath := filepath.Join(workingDir, utils.ConfigFileName)
		if err := os.WriteFile(localPath, []byte(testCase.localContent), 0o600); err != nil {
			t.Fatalf("write local config: %v", err)
		}
	}
	if testCase.explicitPath != "" {
		target := filepath.Join(workingDir, testCase.explicitPath)
		if err := os.WriteFile(target, []byte(testCase.explicitContent), 0o600); err != nil {
			t.Fatalf("write explicit config: %v", err)
		}
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("USERPROFILE", homeDir)
	return homeDir, workingDir
}

func TestLoadApplicationConfigurationMergesSources(t *testing.T) {
	testCases := []configTestCase{
		{
			name:              "local_overrides_global",
			globalContent:     "encoding: r50k_base\nformat: json\nstrict_decode: true\nconcurrency: 2\n",
			localContent:      "encoding: o200k_base\nstrict_decode: false\nmatch_timeout: 2s\n",
			expectEncoding:    "o200k_base",
			expectFormat:      "json",
			expectStrict:      boolPointer(false),
			expectConcurrency: 2,
			expectTimeout:     2 * time.Second,
		},
		{
			name:              "explicit_path_replaces_local",
			globalContent:     "model: gpt-4\n",
			localContent:      "format: xml\n",
			explicitPath:      "custom.yaml",
			explicitContent:   "format: table\nconcurrency: 8\n",
			expectModel:       "gpt-4",
			expectFormat:      "table",
			expectConcurrency: 8,
			expectTimeout:     DefaultMatchTimeout,
		},
		{
			name:              "no_files",
			expectConcurrency: DefaultConcurrency,
			expectTimeout:     DefaultMatchTimeout,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, workingDir := writeConfigurationFiles(t, testCase)

			loadedConfig, err := LoadApplicationConfiguration(LoadOptions{
				WorkingDirectory: workingDir,
				ExplicitFilePath: testCase.explicitPath,
			})
			if err != nil {
				t.Fatalf("LoadApplicationConfiguration error: %v", err)
			}

			if loadedConfig.Encoding != testCase.expectEncoding {
				t.Fatalf("expected encoding %q, got %q", testCase.expectEncoding, loadedConfig.Encoding)
			}
			if loadedConfig.Model != testCase.expectModel {
				t.Fatalf("expected model %q, got %q", testCase.expectModel, loadedConfig.Model)
			}
			if loadedConfig.Format != testCase.expectFormat {
				t.Fatalf("expected format %q, got %q", testCase.expectFormat, loadedConfig.Format)
			}
			if testCase.expectStrict == nil {
				if loadedConfig.StrictDecode != nil {
					t.Fatalf("expected no strict_decode override")
				}
			} else if loadedConfig.StrictDecode == nil || *loadedConfig.StrictDecode != *testCase.expectStrict {
				t.Fatalf("unexpected strict_decode value")
			}
			if loadedConfig.EffectiveConcurrency() != testCase.expectConcurrency {
				t.Fatalf("expected concurrency %d, got %d", testCase.expectConcurrency, loadedConfig.EffectiveConcurrency())
			}
			if loadedConfig.EffectiveMatchTimeout() != testCase.expectTimeout {
				t.Fatalf("expected match timeout %s, got %s", testCase.expectTimeout, loadedConfig.EffectiveMatchTimeout())
			}
		})
	}
}

func TestLoadApplicationConfigurationResolvesVocabularyPaths(t *testing.T) {
	testCase := configTestCase{
		globalContent: "vocabulary:\n  cache_directory: cache\n  files:\n    r50k_base: /opt/r50k.tiktoken\n",
		localContent:  "vocabulary:\n  files:\n    CL100K_BASE: vocab/cl100k.tiktoken\n",
	}
	homeDir, workingDir := writeConfigurationFiles(t, testCase)

	loadedConfig, err := LoadApplicationConfiguration(LoadOptions{WorkingDirectory: workingDir})
	if err != nil {
		t.Fatalf("LoadApplicationConfiguration error: %v", err)
	}

	expectedCache := filepath.Join(homeDir, utils.GlobalConfigDirectoryName, "cache")
	if loadedConfig.Vocabulary.CacheDirectory != expectedCache {
		t.Fatalf("expected cache directory %s, got %s", expectedCache, loadedConfig.Vocabulary.CacheDirectory)
	}
	if loadedConfig.VocabularyCacheDirectory() != expectedCache {
		t.Fatalf("expected resolved cache directory %s, got %s", expectedCache, loadedConfig.VocabularyCacheDirectory())
	}
	if loadedConfig.Vocabulary.Files["r50k_base"] != "/opt/r50k.tiktoken" {
		t.Fatalf("expected global file entry to survive, got %v", loadedConfig.Vocabulary.Files)
	}
	expectedLocal := filepath.Join(workingDir, "vocab", "cl100k.tiktoken")
	if loadedConfig.Vocabulary.Files["cl100k_base"] != expectedLocal {
		t.Fatalf("expected local file entry %s, got %v", expectedLocal, loadedConfig.Vocabulary.Files)
	}
}

func TestLoadApplicationConfigurationRejectsDirectory(t *testing.T) {
	workingDir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	if err := os.MkdirAll(filepath.Join(workingDir, utils.ConfigFileName), 0o755); err != nil {
		t.Fatalf("create directory: %v", err)
	}
	if _, err := LoadApplicationConfiguration(LoadOptions{WorkingDirectory: workingDir}); err == nil {
		t.Fatalf("expected error when configuration path is a directory")
	}
}

func TestVocabularyCacheDirectoryFallsBackToEnvironment(t *testing.T) {
	environmentDirectory := t.TempDir()
	t.Setenv(TiktokenCacheDirectoryEnvironmentKey, environmentDirectory)

	var configuration ApplicationConfiguration
	if configuration.VocabularyCacheDirectory() != environmentDirectory {
		t.Fatalf("expected %s, got %s", environmentDirectory, configuration.VocabularyCacheDirectory())
	}

	configuration.Vocabulary.CacheDirectory = "/explicit"
	if configuration.VocabularyCacheDirectory() != "/explicit" {
		t.Fatalf("expected configured directory to win, got %s", configuration.VocabularyCacheDirectory())
	}
}

func TestEffectiveDefaults(t *testing.T) {
	var configuration ApplicationConfiguration
	if configuration.EffectiveChunkCacheSize() != DefaultChunkCacheSize {
		t.Fatalf("expected default chunk cache size")
	}
	if configuration.EffectiveMaxInputBytes() != 0 {
		t.Fatalf("expected unlimited input by default")
	}
	if configuration.EffectiveStrictDecode() {
		t.Fatalf("expected lossy decoding by default")
	}

	configuration = configuration.Merge(ApplicationConfiguration{
		ChunkCacheSize: intPointer(0),
		MaxInputBytes:  intPointer(1024),
		Concurrency:    intPointer(0),
		StrictDecode:   boolPointer(true),
	})
	if configuration.EffectiveChunkCacheSize() != 0 {
		t.Fatalf("expected disabled chunk cache, got %d", configuration.EffectiveChunkCacheSize())
	}
	if configuration.EffectiveMaxInputBytes() != 1024 {
		t.Fatalf("expected input limit 1024, got %d", configuration.EffectiveMaxInputBytes())
	}
	if configuration.EffectiveConcurrency() != DefaultConcurrency {
		t.Fatalf("expected non-positive concurrency to fall back to default")
	}
	if !configuration.EffectiveStrictDecode() {
		t.Fatalf("expected strict decoding")
	}
}
