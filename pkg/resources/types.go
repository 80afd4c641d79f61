// Package resources provides the ResourceProvider contract the core
// depends on for model/cache path resolution and artifact download, plus a
// default filesystem-backed implementation.
package resources

import (
	"context"
	"errors"
)

// ErrResourceUnavailable is returned when a required external resource
// (model file, media tool binary) cannot be located or fetched.
var ErrResourceUnavailable = errors.New("resources: resource unavailable")

// ProgressCallback reports download progress as bytes transferred and the
// total expected (0 if unknown).
type ProgressCallback func(transferred, total int64)

// Provider resolves model/cache locations and fetches artifacts. The file
// pipeline accepts a Provider at construction. Engines do not: they take a
// model directory path (e.g. from GetModelsDir) and download nothing.
type Provider interface {
	ModelsRoot() string
	CacheRoot() string
	GetModelsDir(engineName string) string

	DownloadFile(ctx context.Context, url, filename, expectedSHA256 string, onProgress ProgressCallback) (path string, err error)

	EnsureMediaTool(ctx context.Context) (path string, err error)
	ResolveProbe(ctx context.Context) (path string, err error)
}
