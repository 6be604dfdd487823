package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/unidoc/unipdf/v3/common/license"
	"go.uber.org/zap"

	"formagent/internal/apperr"
	"formagent/internal/domain"
)

// Loader turns files on disk into pages of raw text.
type Loader struct {
	logger   *zap.Logger
	pdfPages func(path string) ([]string, error)
}

// New creates a loader. When licenseEnv names a non-empty variable its value
// is installed as the UniDoc metered key used for PDF extraction.
func New(licenseEnv string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key := os.Getenv(licenseEnv); licenseEnv != "" && key != "" {
		if err := license.SetMeteredKey(key); err != nil {
			logger.Warn("unidoc license rejected, PDF extraction may fail", zap.Error(err))
		}
	}
	l := &Loader{logger: logger}
	l.pdfPages = l.extractPDFPages
	return l
}

// Supported reports whether path has an extension the loader can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// LoadPaths expands globs and directories and loads every supported file.
// Files that fail to load are logged and skipped; an error is returned only
// when nothing could be loaded.
func (l *Loader) LoadPaths(paths []string) ([]domain.Page, error) {
	files, err := expand(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperr.NotFound("no supported documents found").WithDetail("paths", paths)
	}
	var pages []domain.Page
	loaded := 0
	for _, f := range files {
		ps, err := l.LoadFile(f)
		if err != nil {
			l.logger.Warn("skipping document", zap.String("path", f), zap.Error(err))
			continue
		}
		loaded++
		pages = append(pages, ps...)
	}
	if loaded == 0 {
		return nil, fmt.Errorf("none of %d documents could be loaded", len(files))
	}
	l.logger.Info("loaded documents", zap.Int("files", loaded), zap.Int("pages", len(pages)))
	return pages, nil
}

// LoadFile reads one document. PDFs yield one page per PDF page; text files
// are split on form feeds.
func (l *Loader) LoadFile(path string) ([]domain.Page, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		texts, err := l.pdfPages(path)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", path, err)
		}
		pages := make([]domain.Page, 0, len(texts))
		for i, t := range texts {
			pages = append(pages, domain.Page{Text: t, SourceID: path, PageNumber: i + 1})
		}
		return pages, nil
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return textPages(string(data), path), nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

func textPages(text, source string) []domain.Page {
	parts := strings.Split(text, "\f")
	pages := make([]domain.Page, 0, len(parts))
	for i, p := range parts {
		pages = append(pages, domain.Page{Text: p, SourceID: source, PageNumber: i + 1})
	}
	return pages
}

// expand resolves globs and walks directories. The result is sorted and
// free of duplicates.
func expand(paths []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok || !Supported(p) {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, apperr.InvalidArgument(fmt.Sprintf("bad pattern %q", p))
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			if !info.IsDir() {
				add(m)
				continue
			}
			err = filepath.WalkDir(m, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
