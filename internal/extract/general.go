package extract

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

const maxTitleLen = 120

// Input carries the parsed document an extractor works on.
type Input struct {
	DocumentID string
	URL        string
	Mimetype   string
	Extension  string
	Size       int64
	RawText    string
	Tokens     []string
}

// Result is the extractor output: a title candidate and flat metadata
// fields destined for the search entry.
type Result struct {
	Title  string
	Fields map[string]string
}

// General produces the baseline metadata every document gets regardless
// of its domain.
type General struct{}

func NewGeneral() *General { return &General{} }

// Extract derives a title candidate and generic fields from the parsed
// upload.
func (g *General) Extract(in Input) Result {
	fields := map[string]string{
		"filename":   filename(in.URL),
		"mimetype":   in.Mimetype,
		"extension":  in.Extension,
		"size":       strconv.FormatInt(in.Size, 10),
		"word_count": strconv.Itoa(len(in.Tokens)),
	}
	return Result{Title: titleCandidate(in), Fields: fields}
}

// titleCandidate prefers the first non-empty text line, then the filename
// without its extension.
func titleCandidate(in Input) string {
	for _, line := range strings.Split(in.RawText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > maxTitleLen {
			line = strings.TrimSpace(line[:maxTitleLen])
		}
		return line
	}
	name := filename(in.URL)
	return strings.TrimSuffix(name, path.Ext(name))
}

func filename(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	return path.Base(p)
}
