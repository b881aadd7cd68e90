// Package output writes reassembled files to disk.
package output

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"firestige.xyz/segrecv/internal/core"
	"firestige.xyz/segrecv/internal/metrics"
	"firestige.xyz/segrecv/internal/reassembly"
)

// Result describes one written file.
type Result struct {
	FileID   uint8
	FileName string
	Path     string
	Bytes    int
}

// Writer materializes complete groups under a base directory.
type Writer struct {
	dir  string
	perm os.FileMode
}

// NewWriter creates a Writer rooted at dir. An empty dir means the working
// directory.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "."
	}
	return &Writer{dir: dir, perm: 0o644}
}

// Dir returns the base directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the output path for a decoded file name. Names must be local
// paths: absolute names and names escaping the base directory are rejected.
func (w *Writer) Path(fileName string) (string, error) {
	if !filepath.IsLocal(fileName) {
		return "", fmt.Errorf("%w: %q", core.ErrUnsafeFileName, fileName)
	}
	return filepath.Join(w.dir, fileName), nil
}

// Write materializes g and writes it in full. Nothing is created when the
// group cannot be materialized. A failed write may leave a partial file.
func (w *Writer) Write(g *reassembly.Group) (Result, error) {
	res := Result{FileID: g.FileID()}

	content, err := g.Materialize()
	if err != nil {
		metrics.FilesWrittenTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return res, err
	}
	res.FileName, _ = g.FileName()

	path, err := w.Path(res.FileName)
	if err != nil {
		metrics.FilesWrittenTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return res, err
	}
	res.Path = path

	if err := writeFile(path, content, w.perm); err != nil {
		metrics.FilesWrittenTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return res, fmt.Errorf("write file %q: %w", res.FileName, err)
	}
	res.Bytes = len(content)

	metrics.FilesWrittenTotal.WithLabelValues(metrics.ResultOK).Inc()
	metrics.BytesWrittenTotal.Add(float64(res.Bytes))
	slog.Debug("file written", "file_id", res.FileID, "file_name", res.FileName, "path", path, "bytes", res.Bytes)
	return res, nil
}

func writeFile(path string, content []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
