package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Operator is a filter predicate type applied to one metadata field.
type Operator string

const (
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpExists         Operator = "exists"
	OpNotExists      Operator = "not_exists"
	OpEqual          Operator = "equal"
	OpNotEqual       Operator = "not_equal"
	OpGreaterThan    Operator = "greater_than"
	OpGreaterOrEqual Operator = "greater_than_or_equal"
	OpLessThan       Operator = "less_than"
	OpLessOrEqual    Operator = "less_than_or_equal"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpRegex          Operator = "regex"
	OpSemanticSearch Operator = "semantic_search"
)

// ParseOperator validates an operator string.
func ParseOperator(s string) (Operator, error) {
	switch Operator(s) {
	case OpIn, OpNotIn, OpExists, OpNotExists, OpEqual, OpNotEqual,
		OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual,
		OpContains, OpNotContains, OpRegex, OpSemanticSearch:
		return Operator(s), nil
	default:
		return "", fmt.Errorf("unknown filter operator %q", s)
	}
}

// Comparison reports whether the operator orders values (GT/GTE/LT/LTE).
func (o Operator) Comparison() bool {
	switch o {
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		return true
	}
	return false
}

// NeedsValue reports whether the operator requires at least one filter value.
func (o Operator) NeedsValue() bool {
	return o != OpExists && o != OpNotExists
}

// DataTypeNumeric tags a field for numeric comparison.
const DataTypeNumeric = "numeric"

// dataTypeDatePrefix tags a field for chronological comparison; the rest of
// the tag is the date layout.
const dataTypeDatePrefix = "date:"

// DefaultSemanticTopN bounds a semantic-search re-query when the caller
// supplies no cap.
const DefaultSemanticTopN = 10

// Condition is a single typed filter clause. Conditions are immutable and
// validated at construction; a chain of them narrows a result set
// sequentially as an AND.
type Condition struct {
	key      string
	op       Operator
	values   []string
	dataType string

	// semantic_search parameters
	topN           int
	scoreThreshold float64

	pattern *regexp.Regexp
}

// New validates and creates a Condition.
func New(key string, op Operator, values []string, dataType string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if _, err := ParseOperator(string(op)); err != nil {
		return Condition{}, err
	}
	if op.NeedsValue() && len(values) == 0 {
		return Condition{}, fmt.Errorf("operator %s requires a value for key %q", op, key)
	}

	c := Condition{key: key, op: op, values: append([]string(nil), values...), dataType: dataType}

	if op.Comparison() {
		if dataType != DataTypeNumeric {
			if _, ok := c.DateLayout(); !ok {
				return Condition{}, fmt.Errorf(
					"operator %s on key %q requires %q or %q data type, got %q",
					op, key, DataTypeNumeric, dataTypeDatePrefix+"<layout>", dataType,
				)
			}
		}
	}

	if op == OpRegex {
		p, err := regexp.Compile(values[0])
		if err != nil {
			return Condition{}, fmt.Errorf("invalid regex for key %q: %w", key, err)
		}
		c.pattern = p
	}

	if op == OpSemanticSearch {
		c.topN = DefaultSemanticTopN
	}

	return c, nil
}

// NewSemantic creates a semantic-search condition with an explicit result
// cap and similarity cutoff.
func NewSemantic(key, query string, topN int, scoreThreshold float64) (Condition, error) {
	c, err := New(key, OpSemanticSearch, []string{query}, "")
	if err != nil {
		return Condition{}, err
	}
	if topN > 0 {
		c.topN = topN
	}
	c.scoreThreshold = scoreThreshold
	return c, nil
}

// Key returns the metadata field name.
func (c Condition) Key() string { return c.key }

// Op returns the operator.
func (c Condition) Op() Operator { return c.op }

// Values returns the filter value list.
func (c Condition) Values() []string { return c.values }

// Value returns the first filter value, empty if none.
func (c Condition) Value() string {
	if len(c.values) == 0 {
		return ""
	}
	return c.values[0]
}

// DataType returns the type tag driving comparison coercion.
func (c Condition) DataType() string { return c.dataType }

// IsNumeric reports whether comparisons coerce to numbers.
func (c Condition) IsNumeric() bool { return c.dataType == DataTypeNumeric }

// DateLayout returns the Go time layout for chronological comparison.
// strftime directives in the tag are translated, so both "date:2006-01-02"
// and "date:%Y-%m-%d" denote the same layout.
func (c Condition) DateLayout() (string, bool) {
	if !strings.HasPrefix(c.dataType, dataTypeDatePrefix) {
		return "", false
	}
	layout := strings.TrimPrefix(c.dataType, dataTypeDatePrefix)
	if layout == "" {
		return "", false
	}
	return translateLayout(layout), true
}

// TopN returns the semantic-search result cap.
func (c Condition) TopN() int { return c.topN }

// ScoreThreshold returns the semantic-search similarity cutoff.
func (c Condition) ScoreThreshold() float64 { return c.scoreThreshold }

// Pattern returns the compiled regex for OpRegex conditions.
func (c Condition) Pattern() *regexp.Regexp { return c.pattern }

var strftimeReplacer = strings.NewReplacer(
	"%Y", "2006",
	"%y", "06",
	"%m", "01",
	"%d", "02",
	"%H", "15",
	"%M", "04",
	"%S", "05",
)

// translateLayout converts strftime directives to a Go reference layout.
// Layouts without '%' are passed through untouched.
func translateLayout(layout string) string {
	if !strings.Contains(layout, "%") {
		return layout
	}
	return strftimeReplacer.Replace(layout)
}
