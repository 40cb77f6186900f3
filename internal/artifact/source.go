package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Source hands out the raw bytes of an artifact one file at a time, so a
// reader only fetches the partitions it needs.
type Source interface {
	// Manifest returns the manifest bytes.
	Manifest(ctx context.Context) ([]byte, error)
	// Partition returns the bytes of an artifact-relative partition file.
	// A file that does not exist yields an error wrapping ErrMissingPartition.
	Partition(ctx context.Context, file string) ([]byte, error)
	String() string
}

// DirSource reads an artifact from a local directory.
type DirSource struct {
	Root string
}

func (s DirSource) Manifest(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no manifest in %s", apperrors.ErrCorruptArtifact, s.Root)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return data, nil
}

func (s DirSource) Partition(ctx context.Context, file string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validFilePath(file) {
		return nil, fmt.Errorf("%w: invalid partition file %q", apperrors.ErrMissingPartition, file)
	}
	data, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(file)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrMissingPartition, file)
		}
		return nil, fmt.Errorf("reading partition %s: %w", file, err)
	}
	return data, nil
}

func (s DirSource) String() string { return "dir:" + s.Root }

// DefaultMaxFetchBytes caps one HTTP-fetched artifact file.
const DefaultMaxFetchBytes = 64 << 20

// HTTPSource fetches artifact files relative to a documentation site URL,
// the way a browser-hosted client downloads one partition at a time.
type HTTPSource struct {
	base     string
	client   *http.Client
	retry    resilience.RetryConfig
	maxBytes int64
}

// NewHTTPSource creates a source rooted at baseURL. A nil client uses
// http.DefaultClient. Bodies larger than maxBytes are refused; maxBytes <= 0
// means DefaultMaxFetchBytes.
func NewHTTPSource(baseURL string, client *http.Client, retry resilience.RetryConfig, maxBytes int64) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid artifact base url %q", apperrors.ErrInvalidInput, baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFetchBytes
	}
	return &HTTPSource{base: u.String(), client: client, retry: retry, maxBytes: maxBytes}, nil
}

func (s *HTTPSource) Manifest(ctx context.Context) ([]byte, error) {
	data, err := s.fetch(ctx, ManifestFile)
	switch {
	case errors.Is(err, errNotFound):
		return nil, fmt.Errorf("%w: no manifest at %s", apperrors.ErrCorruptArtifact, s.base)
	case errors.Is(err, errTooLarge):
		return nil, fmt.Errorf("%w: manifest at %s: %w", apperrors.ErrCorruptArtifact, s.base, err)
	}
	return data, err
}

func (s *HTTPSource) Partition(ctx context.Context, file string) ([]byte, error) {
	if !validFilePath(file) {
		return nil, fmt.Errorf("%w: invalid partition file %q", apperrors.ErrMissingPartition, file)
	}
	data, err := s.fetch(ctx, file)
	switch {
	case errors.Is(err, errNotFound):
		return nil, fmt.Errorf("%w: %s", apperrors.ErrMissingPartition, file)
	case errors.Is(err, errTooLarge):
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrMissingPartition, file, err)
	}
	return data, err
}

func (s *HTTPSource) String() string { return s.base }

var (
	errNotFound = errors.New("not found")
	errTooLarge = errors.New("body exceeds size limit")
)

func (s *HTTPSource) fetch(ctx context.Context, file string) ([]byte, error) {
	target, err := url.JoinPath(s.base, file)
	if err != nil {
		return nil, fmt.Errorf("building url for %s: %w", file, err)
	}
	var body []byte
	err = resilience.Retry(ctx, "fetch "+file, s.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return resilience.Permanent(errNotFound)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return resilience.Permanent(fmt.Errorf("GET %s: status %d", target, resp.StatusCode))
		}
		if resp.ContentLength > s.maxBytes {
			return resilience.Permanent(fmt.Errorf("GET %s: %w (%d > %d bytes)", target, errTooLarge, resp.ContentLength, s.maxBytes))
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
		if err != nil {
			return fmt.Errorf("reading %s: %w", target, err)
		}
		if int64(len(data)) > s.maxBytes {
			return resilience.Permanent(fmt.Errorf("GET %s: %w (%d bytes)", target, errTooLarge, s.maxBytes))
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
