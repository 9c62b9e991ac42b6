package search

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	"github.com/kailas-cloud/docdex/internal/domain/search/result"
	"github.com/kailas-cloud/docdex/internal/textproc"
)

// evaluate folds the condition chain over the first-pass results. Each
// condition narrows the output of the previous one and produces a new
// slice; condition order therefore affects final membership.
func (s *Service) evaluate(
	ctx context.Context, label domain.Label, profile domain.Profile,
	conditions []filter.Condition, docs []result.MatchedDocument,
) []result.MatchedDocument {
	for _, c := range conditions {
		if c.Op() == filter.OpSemanticSearch {
			s.semanticRequery(ctx, label, profile, c)
			continue // pass-through: the working set is unchanged
		}
		docs = applyCondition(c, docs)
	}
	return docs
}

// applyCondition keeps the documents satisfying one predicate.
func applyCondition(c filter.Condition, docs []result.MatchedDocument) []result.MatchedDocument {
	out := make([]result.MatchedDocument, 0, len(docs))
	for i := range docs {
		if satisfies(c, &docs[i]) {
			out = append(out, docs[i])
		}
	}
	return out
}

// satisfies evaluates one condition against one document. A document
// lacking the field is excluded by every operator except NOT EXISTS;
// malformed field values exclude the document rather than erroring.
func satisfies(c filter.Condition, doc *result.MatchedDocument) bool {
	val, present := doc.Field(c.Key())
	switch c.Op() {
	case filter.OpExists:
		return present
	case filter.OpNotExists:
		return !present
	}
	if !present {
		return false
	}

	text := val.Text
	switch c.Op() {
	case filter.OpIn:
		return inValues(text, c.Values())
	case filter.OpNotIn:
		return !inValues(text, c.Values())
	case filter.OpEqual:
		return text == c.Value()
	case filter.OpNotEqual:
		return text != c.Value()
	case filter.OpGreaterThan, filter.OpGreaterOrEqual, filter.OpLessThan, filter.OpLessOrEqual:
		return compare(c, text)
	case filter.OpContains:
		return containsToken(text, c.Values())
	case filter.OpNotContains:
		return !containsToken(text, c.Values())
	case filter.OpRegex:
		return c.Pattern().MatchString(text)
	}
	return false
}

func inValues(text string, values []string) bool {
	for _, v := range values {
		if text == v {
			return true
		}
	}
	return false
}

// compare orders field against filter value per the condition's data
// type tag. Unparseable values exclude the document.
func compare(c filter.Condition, field string) bool {
	var cmp int
	switch {
	case c.IsNumeric():
		fieldNum, err1 := strconv.ParseFloat(strings.TrimSpace(field), 64)
		filterNum, err2 := strconv.ParseFloat(c.Value(), 64)
		if err1 != nil || err2 != nil {
			return false
		}
		switch {
		case fieldNum < filterNum:
			cmp = -1
		case fieldNum > filterNum:
			cmp = 1
		}
	default:
		layout, ok := c.DateLayout()
		if !ok {
			return false
		}
		fieldTime, err1 := time.Parse(layout, strings.TrimSpace(field))
		filterTime, err2 := time.Parse(layout, c.Value())
		if err1 != nil || err2 != nil {
			return false
		}
		switch {
		case fieldTime.Before(filterTime):
			cmp = -1
		case fieldTime.After(filterTime):
			cmp = 1
		}
	}

	switch c.Op() {
	case filter.OpGreaterThan:
		return cmp > 0
	case filter.OpGreaterOrEqual:
		return cmp >= 0
	case filter.OpLessThan:
		return cmp < 0
	case filter.OpLessOrEqual:
		return cmp <= 0
	}
	return false
}

// containsToken reports whether any token of the filter values appears as
// a whole token of the field value. Matching is case-insensitive.
func containsToken(field string, values []string) bool {
	fieldTokens := map[string]bool{}
	for _, tok := range textproc.Tokenize(field) {
		fieldTokens[tok] = true
	}
	for _, v := range values {
		for _, tok := range textproc.Tokenize(v) {
			if fieldTokens[tok] {
				return true
			}
		}
	}
	return false
}

// semanticRequery runs the per-field KNN re-query of a semantic-search
// condition. The re-query result is logged but not intersected with the
// working set; the condition is a pass-through.
func (s *Service) semanticRequery(
	ctx context.Context, label domain.Label, profile domain.Profile, c filter.Condition,
) {
	if !profile.IsSemanticField(c.Key()) {
		return
	}
	vector, err := s.encoder.Encode(ctx, label, c.Value())
	if err != nil {
		s.logger.Warn("semantic filter encode", zap.String("key", c.Key()), zap.Error(err))
		return
	}
	hits, err := s.retriever.VectorQuery(ctx, profile.Index, vector, c.TopN(), c.Key())
	if err != nil {
		s.logger.Warn("semantic filter query", zap.String("key", c.Key()), zap.Error(err))
		return
	}
	kept := 0
	for _, h := range hits {
		if h.Score >= c.ScoreThreshold() {
			kept++
		}
	}
	s.logger.Debug("semantic filter requery",
		zap.String("key", c.Key()), zap.Int("hits", len(hits)), zap.Int("above_threshold", kept))
}
