package schema

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
)

// Source identifies where a schema document lives so providers can read
// files, fs.FS entries, or URLs without caring which.
type Source interface {
	Kind() SourceKind
	Location() string
}

// SourceKind enumerates the read modalities.
type SourceKind string

const (
	SourceKindFile SourceKind = "file"
	SourceKindFS   SourceKind = "fs"
	SourceKindURL  SourceKind = "url"
)

type fileSource struct{ path string }

func (s fileSource) Location() string { return s.path }
func (s fileSource) Kind() SourceKind { return SourceKindFile }

// SourceFromFile returns a Source pointing to a file path.
func SourceFromFile(path string) Source {
	return fileSource{path: filepath.Clean(path)}
}

type fsSource struct{ name string }

func (s fsSource) Location() string { return s.name }
func (s fsSource) Kind() SourceKind { return SourceKindFS }

// SourceFromFS returns a Source identifying a resource inside an fs.FS.
func SourceFromFS(name string) Source {
	return fsSource{name: name}
}

type urlSource struct{ raw string }

func (s urlSource) Location() string { return s.raw }
func (s urlSource) Kind() SourceKind { return SourceKindURL }

// SourceFromURL validates raw and returns a Source for it.
func SourceFromURL(raw string) (Source, error) {
	if raw == "" {
		return nil, errors.New("schema: empty URL source")
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return nil, fmt.Errorf("schema: invalid URL %q: %w", raw, err)
	}
	return urlSource{raw: raw}, nil
}

// SourceFor picks a Source for a location string: http(s) URLs become URL
// sources, everything else a file path.
func SourceFor(location string) (Source, error) {
	if u, err := url.Parse(location); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return SourceFromURL(location)
	}
	if location == "" {
		return nil, errors.New("schema: location is required")
	}
	return SourceFromFile(location), nil
}

// Reader resolves a Source to its bytes.
type Reader struct {
	FS   fs.FS
	HTTP *http.Client
}

// Read fetches the payload behind src.
func (r Reader) Read(ctx context.Context, src Source) ([]byte, error) {
	if src == nil {
		return nil, errors.New("schema: source is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch src.Kind() {
	case SourceKindFile:
		abs, err := filepath.Abs(src.Location())
		if err != nil {
			return nil, err
		}
		return os.ReadFile(abs)
	case SourceKindFS:
		if r.FS == nil {
			return nil, errors.New("schema: filesystem is not configured")
		}
		return fs.ReadFile(r.FS, src.Location())
	case SourceKindURL:
		return r.readHTTP(ctx, src.Location())
	default:
		return nil, fmt.Errorf("schema: unsupported source kind %q", src.Kind())
	}
}

func (r Reader) readHTTP(ctx context.Context, target string) ([]byte, error) {
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New("schema: unexpected status " + resp.Status)
	}
	return io.ReadAll(resp.Body)
}
