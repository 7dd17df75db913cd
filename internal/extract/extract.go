// Package extract turns uploaded file bytes into normalized plain text.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"qaforge/internal/util"
)

const (
	MimePDF      = "application/pdf"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
)

// MimeFromName guesses the content type of a local file by extension.
func MimeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return MimePDF
	case ".md", ".markdown":
		return MimeMarkdown
	case ".txt", ".text":
		return MimeText
	default:
		return ""
	}
}

// Text extracts the text of content. PDF pages are prefixed with
// "[PAGE n]" markers; pages without text are skipped and counted in a
// warning.
func Text(mimeType string, content []byte, logger *zap.Logger) (string, error) {
	switch mimeType {
	case MimePDF:
		return pdfText(content, logger)
	case MimeText, MimeMarkdown:
		return util.NormalizeExtracted(util.SanitizeText(strings.ToValidUTF8(string(content), ""))), nil
	default:
		return "", fmt.Errorf("%w: %q", util.ErrUnsupportedType, mimeType)
	}
}

func pdfText(content []byte, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	total := r.NumPage()
	parts := make([]string, 0, total)
	empty := 0
	for i := 1; i <= total; i++ {
		text, err := pageText(r, i)
		if err != nil {
			logger.Warn("pdf page extraction failed", zap.Int("page", i), zap.Error(err))
			text = ""
		}
		text = util.SanitizeText(text)
		if text == "" {
			empty++
			continue
		}
		parts = append(parts, fmt.Sprintf("[PAGE %d]\n%s", i, text))
	}
	if empty > 0 {
		logger.Warn("pdf pages without text, possibly scans",
			zap.Int("empty_pages", empty), zap.Int("pages", total))
	}
	return util.NormalizeExtracted(strings.Join(parts, "\n\n")), nil
}

// pageText guards against the panics the pdf package raises on malformed
// content streams.
func pageText(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", num, rec)
		}
	}()
	p := r.Page(num)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}
