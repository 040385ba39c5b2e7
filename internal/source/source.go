// Sources provide byte access to origin images. Implementations are
// resolved per identifier; the rest of the system consumes them through
// the narrow Source interface.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// Source is one resolved origin image.
type Source interface {
	// Name identifies the implementation, not the instance. Health checks
	// deduplicate probed sources by it.
	Name() string
	// Stat probes existence/freshness without reading image bytes.
	Stat(ctx context.Context) (*entity.StatResult, error)
	// NewReader opens the image bytes for reading.
	NewReader(ctx context.Context) (io.ReadCloser, error)
}

// Resolver maps an identifier onto a Source.
type Resolver interface {
	Resolve(ctx context.Context, id entity.Identifier) (Source, error)
}

// FileSource reads an image from the local filesystem.
type FileSource struct {
	path string
}

const fileSourceName = "FilesystemSource"

// NewFileSource resolves id below basePath, rejecting path traversal.
func NewFileSource(basePath string, id entity.Identifier) (*FileSource, error) {
	path := filepath.Join(basePath, filepath.FromSlash(string(id)))
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(abs, absBase+string(os.PathSeparator)) {
		return nil, fmt.Errorf("identifier escapes source root: %w", entity.ErrNotFound)
	}
	return &FileSource{path: abs}, nil
}

func (s *FileSource) Name() string { return fileSourceName }

func (s *FileSource) Stat(ctx context.Context) (*entity.StatResult, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("source image %s: %w", s.path, entity.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", s.path, entity.ErrUpstreamIO)
	}
	return entity.NewStatResult(fi.ModTime(), fi.Size()), nil
}

func (s *FileSource) NewReader(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("source image %s: %w", s.path, entity.ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", s.path, entity.ErrUpstreamIO)
	}
	return f, nil
}

// HTTPSource reads an image from an upstream HTTP server. Stat issues a
// HEAD request so freshness headers are available without a body read.
type HTTPSource struct {
	url    string
	client *http.Client
}

const httpSourceName = "HTTPSource"

func NewHTTPSource(baseURL string, id entity.Identifier, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(string(id)),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Name() string { return httpSourceName }

func (s *HTTPSource) Stat(ctx context.Context) (*entity.StatResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HEAD %s: %w", s.url, entity.ErrUpstreamIO)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("source image %s: %w", s.url, entity.ErrNotFound)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("HEAD %s returned %d: %w", s.url, resp.StatusCode, entity.ErrUpstreamIO)
	}
	stat := &entity.StatResult{}
	if resp.ContentLength >= 0 {
		size := resp.ContentLength
		stat.Size = &size
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			stat.LastModified = &t
		}
	}
	return stat, nil
}

func (s *HTTPSource) NewReader(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", s.url, entity.ErrUpstreamIO)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("source image %s: %w", s.url, entity.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s returned %d: %w", s.url, resp.StatusCode, entity.ErrUpstreamIO)
	}
	return resp.Body, nil
}

// ConfigResolver builds sources from static configuration.
type ConfigResolver struct {
	backend  string
	basePath string
	baseURL  string
	timeout  time.Duration
}

func NewConfigResolver(backend, basePath, baseURL string, timeout time.Duration) *ConfigResolver {
	return &ConfigResolver{backend: backend, basePath: basePath, baseURL: baseURL, timeout: timeout}
}

func (r *ConfigResolver) Resolve(ctx context.Context, id entity.Identifier) (Source, error) {
	switch r.backend {
	case "http":
		return NewHTTPSource(r.baseURL, id, r.timeout), nil
	default:
		return NewFileSource(r.basePath, id)
	}
}
