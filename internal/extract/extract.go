// Package extract writes the files an agent described in its output to disk.
//
// A file is a path mention followed, within a short window, by a fenced code
// block; the block's content becomes the file. Paths are resolved against a
// root directory and anything that would land outside it is refused.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/ensemble/internal/logging"
	"github.com/Iron-Ham/ensemble/internal/paths"
	"github.com/Iron-Ham/ensemble/internal/util"
)

// Result reports what ExtractAndWrite did. Paths are relative to the root.
type Result struct {
	FilesWritten []string
	FilesSkipped []string
	Errors       []error
}

// Writer extracts and writes files.
type Writer struct {
	window int
	logger *logging.Logger
}

// NewWriter creates a Writer pairing paths with blocks that open within
// window bytes. A window of 0 uses paths.DefaultProximity.
func NewWriter(window int, logger *logging.Logger) *Writer {
	if window <= 0 {
		window = paths.DefaultProximity
	}
	return &Writer{window: window, logger: logger}
}

// ExtractAndWrite writes every path/block pair found in text under root.
// Files whose content is unchanged are skipped. Per-file failures are
// collected in Result.Errors; the returned error is reserved for an unusable
// root or a cancelled context.
func (w *Writer) ExtractAndWrite(ctx context.Context, root, text string) (Result, error) {
	var res Result
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return res, fmt.Errorf("resolve output root: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return res, fmt.Errorf("output root %s is not a directory", root)
	}

	for _, b := range paths.Blocks(text, w.window) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		target, ok := resolve(absRoot, b.Raw)
		if !ok {
			w.logger.Warn("refusing to write outside output root", "path", b.Raw)
			res.FilesSkipped = append(res.FilesSkipped, b.Raw)
			continue
		}

		content := []byte(b.Content + "\n")
		if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, content) {
			res.FilesSkipped = append(res.FilesSkipped, b.Raw)
			continue
		}

		if err := util.WriteFileAtomic(target, content, 0644); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("write %s: %w", b.Raw, err))
			continue
		}
		w.logger.Debug("file written", "path", b.Raw, "bytes", len(content))
		res.FilesWritten = append(res.FilesWritten, b.Raw)
	}
	return res, nil
}

// resolve joins rel onto root and reports whether the result stays inside root.
func resolve(root, rel string) (string, bool) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", false
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	relToRoot, err := filepath.Rel(root, target)
	if err != nil || relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}
