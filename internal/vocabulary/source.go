package vocabulary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	cacheDirectoryPermissions = 0o755
	temporaryDownloadPattern  = ".download-*"
)

// Source provides the raw bytes of a vocabulary file.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads a vocabulary from the local filesystem.
type FileSource struct {
	Path string
}

// Name returns the file path.
func (source FileSource) Name() string {
	return source.Path
}

// Open opens the file.
//
// #nosec G304
func (source FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fileHandle, openErr := os.Open(source.Path)
	if openErr != nil {
		return nil, fmt.Errorf("open vocabulary file: %w", openErr)
	}
	return fileHandle, nil
}

// ReaderSource serves a vocabulary held in memory.
type ReaderSource struct {
	Label string
	Data  []byte
}

// Name returns the label.
func (source ReaderSource) Name() string {
	if source.Label == "" {
		return inMemorySourceName
	}
	return source.Label
}

// Open returns a reader over the data.
func (source ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(source.Data)), nil
}

// RemoteSource downloads a vocabulary over HTTP. When CacheDirectory is set the
// file is stored there under the SHA-1 of its URL and reused on later opens.
// When SHA256 is set, downloaded and cached content must match it.
type RemoteSource struct {
	URL            string
	SHA256         string
	CacheDirectory string
	Client         *http.Client
	Logger         *zap.Logger
}

// Name returns the URL.
func (source RemoteSource) Name() string {
	return source.URL
}

// CachePath returns where the vocabulary is cached, or "" without a cache directory.
func (source RemoteSource) CachePath() string {
	if source.CacheDirectory == "" {
		return ""
	}
	digest := sha1.Sum([]byte(source.URL))
	return filepath.Join(source.CacheDirectory, hex.EncodeToString(digest[:]))
}

// Cached reports whether a verified copy is already in the cache directory.
func (source RemoteSource) Cached() bool {
	cachePath := source.CachePath()
	if cachePath == "" {
		return false
	}
	matches, err := source.cachedCopyMatches(cachePath)
	return err == nil && matches
}

// Open returns the cached copy when valid, downloading it otherwise.
func (source RemoteSource) Open(ctx context.Context) (io.ReadCloser, error) {
	logger := source.logger()
	cachePath := source.CachePath()
	if cachePath != "" {
		matches, checkErr := source.cachedCopyMatches(cachePath)
		if checkErr != nil {
			return nil, checkErr
		}
		if matches {
			logger.Debug("using cached vocabulary", zap.String("url", source.URL), zap.String("path", cachePath))
			return FileSource{Path: cachePath}.Open(ctx)
		}
	}

	logger.Info("downloading vocabulary", zap.String("url", source.URL))
	if cachePath == "" {
		var data bytes.Buffer
		digest, downloadErr := source.download(ctx, &data)
		if downloadErr != nil {
			return nil, downloadErr
		}
		if verifyErr := source.verify(digest); verifyErr != nil {
			return nil, verifyErr
		}
		return io.NopCloser(bytes.NewReader(data.Bytes())), nil
	}

	if err := os.MkdirAll(source.CacheDirectory, cacheDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create vocabulary cache directory %s: %w", source.CacheDirectory, err)
	}
	temporaryFile, createErr := os.CreateTemp(source.CacheDirectory, temporaryDownloadPattern)
	if createErr != nil {
		return nil, fmt.Errorf("create temporary vocabulary file: %w", createErr)
	}
	temporaryPath := temporaryFile.Name()
	digest, downloadErr := source.download(ctx, temporaryFile)
	closeErr := temporaryFile.Close()
	if downloadErr != nil {
		_ = os.Remove(temporaryPath)
		return nil, downloadErr
	}
	if closeErr != nil {
		_ = os.Remove(temporaryPath)
		return nil, fmt.Errorf("close temporary vocabulary file: %w", closeErr)
	}
	if verifyErr := source.verify(digest); verifyErr != nil {
		_ = os.Remove(temporaryPath)
		return nil, verifyErr
	}
	if renameErr := os.Rename(temporaryPath, cachePath); renameErr != nil {
		_ = os.Remove(temporaryPath)
		return nil, fmt.Errorf("move vocabulary into cache: %w", renameErr)
	}
	logger.Debug("cached vocabulary", zap.String("path", cachePath), zap.String("sha256", digest))
	return FileSource{Path: cachePath}.Open(ctx)
}

func (source RemoteSource) download(ctx context.Context, destination io.Writer) (string, error) {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if requestErr != nil {
		return "", fmt.Errorf("build vocabulary request: %w", requestErr)
	}
	client := source.Client
	if client == nil {
		client = http.DefaultClient
	}
	response, responseErr := client.Do(request)
	if responseErr != nil {
		return "", fmt.Errorf("download vocabulary %s: %w", source.URL, responseErr)
	}
	defer response.Body.Close()
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("download vocabulary %s: %s", source.URL, response.Status)
	}

	hasher := sha256.New()
	if _, copyErr := io.Copy(io.MultiWriter(destination, hasher), response.Body); copyErr != nil {
		return "", fmt.Errorf("read vocabulary %s: %w", source.URL, copyErr)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (source RemoteSource) verify(actualDigest string) error {
	expected := strings.ToLower(strings.TrimSpace(source.SHA256))
	if expected == "" || expected == actualDigest {
		return nil
	}
	return fmt.Errorf("%w: %s expected sha256 %s, got %s", ErrChecksumMismatch, source.URL, expected, actualDigest)
}

func (source RemoteSource) cachedCopyMatches(cachePath string) (bool, error) {
	info, statErr := os.Stat(cachePath)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return false, nil
		}
		return false, fmt.Errorf("stat cached vocabulary %s: %w", cachePath, statErr)
	}
	if info.IsDir() {
		return false, fmt.Errorf("cached vocabulary path %s is a directory", cachePath)
	}
	if strings.TrimSpace(source.SHA256) == "" {
		return true, nil
	}
	digest, digestErr := fileSHA256(cachePath)
	if digestErr != nil {
		return false, digestErr
	}
	return source.verify(digest) == nil, nil
}

func (source RemoteSource) logger() *zap.Logger {
	if source.Logger == nil {
		return zap.NewNop()
	}
	return source.Logger
}

// #nosec G304
func fileSHA256(path string) (string, error) {
	fileHandle, openErr := os.Open(path)
	if openErr != nil {
		return "", fmt.Errorf("open file for checksum: %w", openErr)
	}
	defer fileHandle.Close()

	hasher := sha256.New()
	if _, copyErr := io.Copy(hasher, fileHandle); copyErr != nil {
		return "", fmt.Errorf("read file for checksum: %w", copyErr)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
