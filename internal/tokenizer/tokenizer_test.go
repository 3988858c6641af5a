package tokenizer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/temirov/tokencount/internal/encoding"
	"github.com/temirov/tokencount/internal/pretokenize"
	"github.com/temirov/tokencount/internal/vocabulary/vocabularytest"
)

type testCounter struct{}

func (testCounter) Name() string { return "stub" }

func (testCounter) CountString(input string) (int, error) { return len([]rune(input)), nil }

func newOfflineRegistry(t *testing.T) *encoding.Registry {
	t.Helper()
	store := vocabularytest.Build(t, nil, "he", "ll", "hell", "or", "ld")
	var serialized bytes.Buffer
	if _, err := store.WriteTo(&serialized); err != nil {
		t.Fatalf("WriteTo error: %v", err)
	}
	vocabularyPath := filepath.Join(t.TempDir(), "offline.tiktoken")
	if err := os.WriteFile(vocabularyPath, serialized.Bytes(), 0o600); err != nil {
		t.Fatalf("write vocabulary: %v", err)
	}
	return encoding.NewRegistry(encoding.RegistryOptions{
		Definitions: []encoding.Definition{{
			Name:          encoding.NameCL100KBase,
			Pattern:       pretokenize.PatternCL100K,
			SpecialTokens: map[string]int{encoding.EndOfText: 300},
		}},
		VocabularyFiles: map[string]string{encoding.NameCL100KBase: vocabularyPath},
	})
}

func TestCountBytesText(t *testing.T) {
	result, err := CountBytes(testCounter{}, []byte("hello"))
	if err != nil {
		t.Fatalf("CountBytes error: %v", err)
	}
	if !result.Counted {
		t.Fatalf("expected counted result")
	}
	if result.Tokens != len([]rune("hello")) {
		t.Fatalf("expected %d tokens, got %d", len([]rune("hello")), result.Tokens)
	}
}

func TestCountBytesBinary(t *testing.T) {
	data := []byte{0x00, 0x01, 0x02}
	result, err := CountBytes(testCounter{}, data)
	if err != nil {
		t.Fatalf("CountBytes error: %v", err)
	}
	if result.Counted {
		t.Fatalf("expected binary data to be skipped")
	}
}

func TestCountFiles(t *testing.T) {
	directory := t.TempDir()
	textPath := filepath.Join(directory, "notes.txt")
	binaryPath := filepath.Join(directory, "image.bin")
	if err := os.WriteFile(textPath, []byte("hello world"), 0o600); err != nil {
		t.Fatalf("write text file: %v", err)
	}
	if err := os.WriteFile(binaryPath, []byte{0x89, 0x50, 0x00, 0x01}, 0o600); err != nil {
		t.Fatalf("write binary file: %v", err)
	}

	results, err := CountFiles(t.Context(), testCounter{}, []string{textPath, binaryPath}, 2)
	if err != nil {
		t.Fatalf("CountFiles error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Path != textPath || !results[0].Counted || results[0].Tokens != len("hello world") {
		t.Fatalf("unexpected text result %+v", results[0])
	}
	if results[0].SizeBytes != int64(len("hello world")) {
		t.Fatalf("expected size %d, got %d", len("hello world"), results[0].SizeBytes)
	}
	if results[1].Path != binaryPath || results[1].Counted {
		t.Fatalf("expected binary file to be skipped, got %+v", results[1])
	}

	if _, missingErr := CountFiles(t.Context(), testCounter{}, []string{filepath.Join(directory, "absent")}, 1); missingErr == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, directoryErr := CountFiles(t.Context(), testCounter{}, []string{directory}, 1); directoryErr == nil {
		t.Fatalf("expected error for directory")
	}
}

func TestParseEngine(t *testing.T) {
	testCases := []struct {
		value       string
		expected    Engine
		expectError bool
	}{
		{value: "", expected: EngineNative},
		{value: "native", expected: EngineNative},
		{value: "Reference", expected: EngineReference},
		{value: "python", expectError: true},
	}
	for _, testCase := range testCases {
		engine, err := ParseEngine(testCase.value)
		if testCase.expectError {
			if err == nil {
				t.Fatalf("expected error for %q", testCase.value)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseEngine(%q) error: %v", testCase.value, err)
		}
		if engine != testCase.expected {
			t.Fatalf("ParseEngine(%q) = %q, want %q", testCase.value, engine, testCase.expected)
		}
	}
}

func TestResolveEncodingName(t *testing.T) {
	registry := encoding.NewRegistry(encoding.RegistryOptions{})

	testCases := []struct {
		name     string
		config   Config
		expected string
	}{
		{name: "default", config: Config{}, expected: encoding.DefaultName},
		{name: "explicit_encoding", config: Config{Encoding: encoding.NameR50KBase, Model: "gpt-4o"}, expected: encoding.NameR50KBase},
		{name: "model", config: Config{Model: "gpt-4o"}, expected: encoding.NameO200KBase},
		{name: "unknown_model", config: Config{Model: "claude-3-opus"}, expected: encoding.DefaultName},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			name, err := ResolveEncodingName(registry, testCase.config)
			if err != nil {
				t.Fatalf("ResolveEncodingName error: %v", err)
			}
			if name != testCase.expected {
				t.Fatalf("expected %s, got %s", testCase.expected, name)
			}
		})
	}

	_, err := ResolveEncodingName(registry, Config{Encoding: "nope"})
	var unknown *encoding.UnknownEncodingError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEncodingError, got %v", err)
	}
}

func TestNewCounterNative(t *testing.T) {
	registry := newOfflineRegistry(t)

	counter, encodingName, err := NewCounter(t.Context(), registry, Config{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("NewCounter error: %v", err)
	}
	if encodingName != encoding.NameCL100KBase {
		t.Fatalf("expected encoding %s, got %q", encoding.NameCL100KBase, encodingName)
	}
	if counter.Name() != encoding.NameCL100KBase {
		t.Fatalf("unexpected counter name %q", counter.Name())
	}
	tokens, err := counter.CountString("hello world")
	if err != nil {
		t.Fatalf("CountString error: %v", err)
	}
	// "hello" -> [hell, o], " world" -> [" ", w, or, ld]
	if tokens != 6 {
		t.Fatalf("expected 6 tokens, got %d", tokens)
	}
}

func TestNewCounterReferenceRejectsUnknownEncoding(t *testing.T) {
	registry := encoding.NewRegistry(encoding.RegistryOptions{
		Definitions: []encoding.Definition{{Name: "custom", Pattern: pretokenize.PatternCL100K}},
	})
	if _, _, err := NewCounter(t.Context(), registry, Config{Encoding: "custom", Engine: EngineReference}); err == nil {
		t.Fatalf("expected error for an encoding the reference engine does not know")
	}
}

func TestReferenceCounterRejectsDisallowedSpecial(t *testing.T) {
	counter := openAICounter{
		name:     encoding.NameCL100KBase,
		special:  encoding.SpecialReject,
		specials: []string{encoding.EndOfText},
	}
	_, err := counter.CountString("text <|endoftext|>")
	var disallowed *encoding.DisallowedSpecialError
	if !errors.As(err, &disallowed) {
		t.Fatalf("expected DisallowedSpecialError, got %v", err)
	}
	if _, err := counter.CountString("plain"); err == nil {
		t.Fatalf("expected error for nil reference encoding")
	}
}
