// Package extract turns raw uploads into text and structured metadata.
// It hosts the parse-stage text extraction and the per-domain metadata
// extractors used by the indexing pipeline.
package extract

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// supportedTypes are the mimetypes the pipeline accepts. Image types are
// accepted because they can still yield text through OCR.
var supportedTypes = map[string]bool{
	"text/plain":       true,
	"text/html":        true,
	"text/markdown":    true,
	"text/csv":         true,
	"application/json": true,
	"application/pdf":  true,
	"image/png":        true,
	"image/jpeg":       true,
}

// DetectType sniffs the mimetype from content and falls back to the file
// extension of the storage URL when sniffing yields a generic type. The
// returned extension has no leading dot.
func DetectType(data []byte, rawURL string) (mimetype, extension string) {
	extension = urlExtension(rawURL)

	mimetype = http.DetectContentType(data)
	if i := strings.IndexByte(mimetype, ';'); i >= 0 {
		mimetype = strings.TrimSpace(mimetype[:i])
	}
	if (mimetype == "application/octet-stream" || mimetype == "text/plain") && extension != "" {
		if byExt := mime.TypeByExtension("." + extension); byExt != "" {
			if i := strings.IndexByte(byExt, ';'); i >= 0 {
				byExt = byExt[:i]
			}
			mimetype = byExt
		}
	}
	return mimetype, extension
}

// CheckSupported returns ErrUnsupportedFileType for mimetypes the pipeline
// cannot turn into text.
func CheckSupported(mimetype string) error {
	if supportedTypes[mimetype] {
		return nil
	}
	return fmt.Errorf("mimetype %q: %w", mimetype, domain.ErrUnsupportedFileType)
}

// PlainText extracts raw text from uploads that are already textual.
// Non-text payloads (scans, PDFs with no text layer) come out as mostly
// unsearchable bytes; the pipeline decides on OCR from the searchable
// ratio of the result.
func PlainText(data []byte, mimetype string) string {
	switch mimetype {
	case "image/png", "image/jpeg":
		// no text layer at all
		return ""
	case "text/html":
		return stripTags(string(data))
	}
	if utf8.Valid(data) {
		return string(data)
	}
	// keep the decodable runs, drop the rest
	return strings.ToValidUTF8(string(data), " ")
}

func urlExtension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.TrimPrefix(path.Ext(p), ".")
	return strings.ToLower(ext)
}

// stripTags removes HTML markup, keeping the text content with spaces at
// element boundaries. Good enough for indexing; not a sanitizer.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
