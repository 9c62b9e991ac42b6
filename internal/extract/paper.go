package extract

import (
	"regexp"
	"strings"
)

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Paper extracts scholarly-article metadata: abstract, keywords and the
// publication year when one appears in the text.
type Paper struct{}

func NewPaper() *Paper { return &Paper{} }

func (p *Paper) Extract(in Input) Result {
	fields := map[string]string{}
	if abstract := sectionAfter(in.RawText, "abstract"); abstract != "" {
		fields["abstract"] = abstract
	}
	if kw := lineAfter(in.RawText, "keywords"); kw != "" {
		fields["keywords"] = kw
	}
	if year := yearRe.FindString(in.RawText); year != "" {
		fields["year"] = year
	}
	return Result{Fields: fields}
}

// sectionAfter returns the paragraph that follows a heading line, up to
// the next blank line or the next heading-looking line.
func sectionAfter(text, heading string) string {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if headingMatches(line, heading) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}
	var out []string
	for _, line := range lines[start:] {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(out) > 0 {
				break
			}
			continue
		}
		if isHeading(line) && len(out) > 0 {
			break
		}
		out = append(out, line)
	}
	return strings.Join(out, " ")
}

// lineAfter returns the remainder of a "Heading: value" line, or the
// next non-empty line when the heading stands alone.
func lineAfter(text, heading string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, heading) {
			continue
		}
		rest := strings.TrimSpace(trimmed[len(heading):])
		rest = strings.TrimLeft(rest, ":–- ")
		if rest != "" {
			return rest
		}
		for _, next := range lines[i+1:] {
			if next = strings.TrimSpace(next); next != "" {
				return next
			}
		}
		return ""
	}
	return ""
}

func headingMatches(line, heading string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(line))
	trimmed = strings.TrimRight(trimmed, ":")
	return trimmed == heading
}

// isHeading is a rough guess: short line, no terminal punctuation.
func isHeading(line string) bool {
	if len(line) > 40 {
		return false
	}
	return !strings.ContainsAny(line, ".!?,")
}
