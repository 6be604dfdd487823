package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"formagent/internal/apperr"
	"formagent/internal/domain"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile_TextSplitsOnFormFeed(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "receipt.txt", "Coffee $4.50\fTotal $4.50")

	pages, err := New("", nil).LoadFile(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, domain.Page{Text: "Coffee $4.50", SourceID: path, PageNumber: 1}, pages[0])
	assert.Equal(t, 2, pages[1].PageNumber)
}

func TestLoadFile_PDFUsesExtractor(t *testing.T) {
	l := New("", nil)
	l.pdfPages = func(string) ([]string, error) {
		return []string{"Invoice total: $500", "Thank you"}, nil
	}
	pages, err := l.LoadFile("A.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "A.pdf", pages[0].SourceID)
	assert.Equal(t, 2, pages[1].PageNumber)

	_, err = l.LoadFile("image.png")
	assert.Error(t, err)
}

func TestLoadPaths_WalksDirectoriesAndGlobs(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")
	b := writeFile(t, dir, "nested/b.md", "beta")
	writeFile(t, dir, "ignored.csv", "x,y")

	l := New("", nil)
	pages, err := l.LoadPaths([]string{dir, filepath.Join(dir, "*.txt")})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, a, pages[0].SourceID)
	assert.Equal(t, b, pages[1].SourceID)
}

func TestLoadPaths_SkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.txt", "fine")
	writeFile(t, dir, "bad.pdf", "not a pdf")

	l := New("", nil)
	l.pdfPages = func(string) ([]string, error) { return nil, errors.New("malformed") }
	pages, err := l.LoadPaths([]string{dir})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "fine", pages[0].Text)
}

func TestLoadPaths_NothingFound(t *testing.T) {
	_, err := New("", nil).LoadPaths([]string{filepath.Join(t.TempDir(), "*.pdf")})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestWatcher_ReloadsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	l := New("", nil)
	w, err := l.Watch(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []domain.Page
	removed := map[string]bool{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(_ context.Context, source string, pages []domain.Page) {
			mu.Lock()
			defer mu.Unlock()
			if pages == nil {
				removed[source] = true
				return
			}
			got = append(got, pages...)
		})
	}()

	writeFile(t, dir, "notes.csv", "ignored")
	path := writeFile(t, dir, "new.txt", "Invoice total: $300")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range got {
			if p.SourceID == path && p.Text == "Invoice total: $300" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return removed[path]
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestPageTexts_SkipsFailingPage(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := New("", zap.New(core))

	texts := l.pageTexts("form.pdf", 3, func(n int) (string, error) {
		if n == 2 {
			return "", errors.New("bad content stream")
		}
		return fmt.Sprintf("page %d text", n), nil
	})

	assert.Equal(t, []string{"page 1 text", "", "page 3 text"}, texts)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "skipping unreadable pdf page", entry.Message)
	assert.Equal(t, int64(2), entry.ContextMap()["page"])
}
