// Package writer persists rendered declarations to the output directory.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dbsmedya/typeprobe/internal/logger"
	"github.com/dbsmedya/typeprobe/internal/synth"
)

// IndexFile is the name of the aggregate export manifest.
const IndexFile = "index.ts"

// File is one written (or, in dry-run mode, planned) file.
type File struct {
	Path    string
	Content string
}

// Writer writes one <TypeName>.ts per declaration plus the index. In dry-run
// mode nothing touches the filesystem.
type Writer struct {
	dir    string
	dryRun bool
	logger *logger.Logger
}

// New creates a writer for dir.
func New(dir string, dryRun bool, log *logger.Logger) *Writer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Writer{dir: dir, dryRun: dryRun, logger: log.WithPhase("write")}
}

// DryRun reports whether writes are suppressed.
func (w *Writer) DryRun() bool {
	return w.dryRun
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Files renders the output without writing it.
func (w *Writer) Files(out *synth.Output) []File {
	files := make([]File, 0, len(out.Declarations)+1)
	for _, d := range out.Declarations {
		files = append(files, File{
			Path:    filepath.Join(w.dir, d.TypeName+".ts"),
			Content: synth.Render(d),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	files = append(files, File{
		Path:    filepath.Join(w.dir, IndexFile),
		Content: synth.RenderManifest(out.Manifest),
	})
	return files
}

// Reset removes stale *.ts files from the output directory, creating it if
// needed. Other files and subdirectories are left alone.
func (w *Writer) Reset() error {
	if w.dryRun {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", w.dir, err)
	}

	stale, err := filepath.Glob(filepath.Join(w.dir, "*.ts"))
	if err != nil {
		return fmt.Errorf("failed to list output directory %s: %w", w.dir, err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale file %s: %w", path, err)
		}
	}
	if len(stale) > 0 {
		w.logger.Debugw("Removed stale declarations", "count", len(stale))
	}
	return nil
}

// Write resets the output directory and writes every file. It returns the
// files written, or those that would have been in dry-run mode.
func (w *Writer) Write(out *synth.Output) ([]File, error) {
	files := w.Files(out)
	if w.dryRun {
		w.logger.Infow("Dry run, no files written", "files", len(files), "dir", w.dir)
		return files, nil
	}

	if err := w.Reset(); err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := os.WriteFile(f.Path, []byte(f.Content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}
	w.logger.Infow("Declarations written", "files", len(files), "dir", w.dir)
	return files, nil
}
