// Package textproc normalizes text identically for document ingestion and
// query preprocessing, so first-pass retrieval compares like with like.
package textproc

import (
	"regexp"
	"strings"
	"unicode"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Tokenize case-folds the text and splits it into word and number tokens,
// dropping punctuation.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Preprocess produces the normalized token sequence used for classification
// and indexing: case-fold, strip punctuation, remove stopwords, lemmatize.
func Preprocess(text string) []string {
	raw := Tokenize(text)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, ok := stopwords[tok]; ok {
			continue
		}
		if tok = Lemmatize(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Normalize preprocesses and rejoins into a single normalized string.
func Normalize(text string) string {
	return strings.Join(Preprocess(text), " ")
}

// Lemmatize reduces a token to a base form by stripping common English
// inflection suffixes. Short tokens are left alone.
func Lemmatize(tok string) string {
	if len(tok) <= 3 {
		return tok
	}
	switch {
	case strings.HasSuffix(tok, "ies") && len(tok) > 4:
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "sses"):
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "ing") && len(tok) > 5:
		return tok[:len(tok)-3]
	case strings.HasSuffix(tok, "ed") && len(tok) > 4:
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss"):
		return tok[:len(tok)-1]
	}
	return tok
}

// SearchableRatio returns the fraction of runes that are letters, digits, or
// spaces. A low ratio indicates binary or scanned content that needs the OCR
// extraction path.
func SearchableRatio(text string) float64 {
	if text == "" {
		return 0
	}
	total, searchable := 0, 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			searchable++
		}
	}
	return float64(searchable) / float64(total)
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "when",
		"at", "by", "for", "with", "about", "against", "between", "into",
		"through", "during", "before", "after", "above", "below", "to",
		"from", "up", "down", "in", "out", "on", "off", "over", "under",
		"again", "further", "once", "here", "there", "all", "any", "both",
		"each", "few", "more", "most", "other", "some", "such", "no", "nor",
		"not", "only", "own", "same", "so", "than", "too", "very", "can",
		"will", "just", "don", "should", "now", "i", "me", "my", "myself",
		"we", "our", "ours", "you", "your", "yours", "he", "him", "his",
		"she", "her", "hers", "it", "its", "they", "them", "their", "what",
		"which", "who", "whom", "this", "that", "these", "those", "am",
		"is", "are", "was", "were", "be", "been", "being", "have", "has",
		"had", "having", "do", "does", "did", "doing", "of", "as", "until",
		"while",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
