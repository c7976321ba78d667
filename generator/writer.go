package generator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/genwire/protocol"
)

// Writer writes generated documents to disk with parallel execution.
type Writer struct {
	dir     string
	workers int

	mu      sync.Mutex
	metrics WriterMetrics
}

// WriterMetrics tracks what a Writer did.
type WriterMetrics struct {
	FilesWritten   int
	FilesUnchanged int
	TotalBytes     int64
}

// NewWriter creates a writer for the output directory dir.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:     dir,
		workers: runtime.GOMAXPROCS(0),
	}
}

// WithWorkers sets the number of parallel workers.
func (w *Writer) WithWorkers(n int) *Writer {
	if n > 0 {
		w.workers = n
	}
	return w
}

// Metrics returns the write metrics.
func (w *Writer) Metrics() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// Write writes every document. Relative paths are resolved against the
// output directory and must stay inside it; absolute paths are used as is.
// Files whose content did not change are left untouched.
func (w *Writer) Write(ctx context.Context, docs []protocol.SourceDocument) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.workers)

	for _, doc := range docs {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return w.writeFile(doc)
			}
		})
	}

	return eg.Wait()
}

func (w *Writer) target(doc protocol.SourceDocument) (string, error) {
	name := doc.Path
	if name == "" {
		name = doc.Name
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}
	if !filepath.IsLocal(name) {
		return "", NewGenerationError("write", name, "path escapes the output directory", nil)
	}
	return filepath.Join(w.dir, name), nil
}

// writeFile writes a single document.
func (w *Writer) writeFile(doc protocol.SourceDocument) error {
	path, err := w.target(doc)
	if err != nil {
		return err
	}
	content := []byte(doc.SourceText)

	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, content) {
		w.mu.Lock()
		w.metrics.FilesUnchanged++
		w.mu.Unlock()
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", doc.Name, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", doc.Name, err)
	}

	w.mu.Lock()
	w.metrics.FilesWritten++
	w.metrics.TotalBytes += int64(len(content))
	w.mu.Unlock()

	return nil
}

// WriteDocuments is the convenience function to write documents under dir.
func WriteDocuments(ctx context.Context, dir string, docs []protocol.SourceDocument) error {
	return NewWriter(dir).Write(ctx, docs)
}
