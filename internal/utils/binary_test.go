package utils_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/temirov/tokencount/internal/utils"
)

func TestIsBinary(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{name: "empty", data: nil, expected: false},
		{name: "ascii", data: []byte("hello world\n"), expected: false},
		{name: "utf8", data: []byte("héllo 你好"), expected: false},
		{name: "nul_byte", data: []byte{'a', 0x00, 'b'}, expected: true},
		{name: "invalid_utf8", data: []byte{0xff, 0xfe}, expected: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if result := utils.IsBinary(testCase.data); result != testCase.expected {
				t.Fatalf("IsBinary(%q) = %v, want %v", testCase.data, result, testCase.expected)
			}
		})
	}
}

func TestIsFileBinary(t *testing.T) {
	directory := t.TempDir()
	textPath := filepath.Join(directory, "text.txt")
	binaryPath := filepath.Join(directory, "data.bin")
	if err := os.WriteFile(textPath, []byte("plain text"), 0o600); err != nil {
		t.Fatalf("write text file: %v", err)
	}
	if err := os.WriteFile(binaryPath, []byte{0x00, 0x10, 0x20}, 0o600); err != nil {
		t.Fatalf("write binary file: %v", err)
	}
	if utils.IsFileBinary(textPath) {
		t.Fatalf("expected text file to be detected as text")
	}
	if !utils.IsFileBinary(binaryPath) {
		t.Fatalf("expected binary file to be detected as binary")
	}
	if utils.IsFileBinary(filepath.Join(directory, "absent")) {
		t.Fatalf("expected missing file to be reported as non-binary")
	}
}

func TestIsFileBinaryIgnoresRuneCutAtSampleEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.txt")
	content := append(bytes.Repeat([]byte("a"), 7999), "é and more text"...)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if utils.IsFileBinary(path) {
		t.Fatalf("expected text with a multi-byte rune at the sample boundary to be detected as text")
	}
}

func TestNewApplicationLogger(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		logger, err := utils.NewApplicationLogger(verbose)
		if err != nil {
			t.Fatalf("NewApplicationLogger(%v) error: %v", verbose, err)
		}
		if enabled := logger.Core().Enabled(-1); enabled != verbose {
			t.Fatalf("debug enabled = %v for verbose %v", enabled, verbose)
		}
	}
}
