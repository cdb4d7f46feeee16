// Package sink persists extraction results as structured JSON artifacts.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"smartcrawl/internal/crawler"
)

// FileSystem writes one indented-JSON document per completed job under a
// root directory.
type FileSystem struct {
	root   string
	logger *zap.Logger
}

// NewFileSystem returns a sink rooted at dir, creating it if needed.
func NewFileSystem(root string, logger *zap.Logger) (*FileSystem, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir %s: %w", root, err)
	}
	return &FileSystem{root: root, logger: logger}, nil
}

// WriteResult persists the result as crawl-<name>.json and returns the path.
func (s *FileSystem) WriteResult(ctx context.Context, name string, result crawler.ExtractionResult) (string, error) {
	target := filepath.Join(s.root, fmt.Sprintf("crawl-%s.json", name))
	if err := writeJSON(ctx, target, result); err != nil {
		return "", err
	}
	s.logger.Debug("result written", zap.String("path", target))
	return target, nil
}

// SingleFile writes every result to one fixed path. Used by the one-shot
// CLI, where the caller names the output file directly.
type SingleFile struct {
	path string
}

// NewSingleFile returns a sink that always writes to path.
func NewSingleFile(path string) *SingleFile {
	return &SingleFile{path: path}
}

// WriteResult persists the result to the configured path, ignoring name.
func (s *SingleFile) WriteResult(ctx context.Context, _ string, result crawler.ExtractionResult) (string, error) {
	if err := writeJSON(ctx, s.path, result); err != nil {
		return "", err
	}
	return s.path, nil
}

func writeJSON(ctx context.Context, target string, result crawler.ExtractionResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create result dir for %s: %w", target, err)
		}
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(target, payload, 0o600); err != nil {
		return fmt.Errorf("write result %s: %w", target, err)
	}
	return nil
}
