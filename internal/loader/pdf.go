package loader

import (
	"fmt"
	"os"

	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"
)

// extractPDFPages returns the text of every page, in page order.
func (l *Loader) extractPDFPages(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := model.NewPdfReader(f)
	if err != nil {
		return nil, err
	}
	encrypted, err := reader.IsEncrypted()
	if err != nil {
		return nil, err
	}
	if encrypted {
		if ok, err := reader.Decrypt([]byte("")); err != nil || !ok {
			return nil, fmt.Errorf("encrypted pdf")
		}
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, err
	}
	return l.pageTexts(path, numPages, func(n int) (string, error) {
		page, err := reader.GetPage(n)
		if err != nil {
			return "", err
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", err
		}
		return ex.ExtractText()
	}), nil
}

// pageTexts extracts pages 1..numPages. A page that fails is logged and left
// empty so later pages keep their numbers.
func (l *Loader) pageTexts(path string, numPages int, extract func(n int) (string, error)) []string {
	out := make([]string, numPages)
	for n := 1; n <= numPages; n++ {
		text, err := extract(n)
		if err != nil {
			l.logger.Warn("skipping unreadable pdf page",
				zap.String("path", path),
				zap.Int("page", n),
				zap.Error(err))
			continue
		}
		out[n-1] = text
	}
	return out
}
