package search

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	"github.com/kailas-cloud/docdex/internal/domain/search/result"
)

func doc(id string, fields map[string]string) result.MatchedDocument {
	metadata := make(map[string]result.Value, len(fields))
	for k, v := range fields {
		metadata[k] = result.Value{Text: v}
	}
	return result.New(id, 1.5, "title "+id, metadata)
}

func ids(docs []result.MatchedDocument) []string {
	out := make([]string, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].ID())
	}
	return out
}

func sameIDs(a []result.MatchedDocument, want ...string) bool {
	got := ids(a)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func mustCond(t *testing.T, key string, op filter.Operator, values []string, dataType string) filter.Condition {
	t.Helper()
	c, err := filter.New(key, op, values, dataType)
	if err != nil {
		t.Fatalf("condition %s %s: %v", key, op, err)
	}
	return c
}

func TestApplyConditionBasicOperators(t *testing.T) {
	docs := []result.MatchedDocument{
		doc("a", map[string]string{"lang": "go", "year": "2020"}),
		doc("b", map[string]string{"lang": "rust", "year": "2021"}),
		doc("c", map[string]string{"year": "2022"}),
	}

	tests := []struct {
		name string
		cond filter.Condition
		want []string
	}{
		{"equal", mustCond(t, "lang", filter.OpEqual, []string{"go"}, ""), []string{"a"}},
		{"not equal", mustCond(t, "lang", filter.OpNotEqual, []string{"go"}, ""), []string{"b"}},
		{"in", mustCond(t, "lang", filter.OpIn, []string{"go", "rust"}, ""), []string{"a", "b"}},
		{"not in", mustCond(t, "lang", filter.OpNotIn, []string{"go"}, ""), []string{"b"}},
		{"exists", mustCond(t, "lang", filter.OpExists, nil, ""), []string{"a", "b"}},
		{"not exists", mustCond(t, "lang", filter.OpNotExists, nil, ""), []string{"c"}},
		{"regex", mustCond(t, "lang", filter.OpRegex, []string{"^r.st$"}, ""), []string{"b"}},
		{
			"numeric gt",
			mustCond(t, "year", filter.OpGreaterThan, []string{"2020"}, filter.DataTypeNumeric),
			[]string{"b", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyCondition(tt.cond, docs)
			if !sameIDs(got, tt.want...) {
				t.Errorf("kept %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestDateComparisonBoundaries(t *testing.T) {
	docs := []result.MatchedDocument{
		doc("old", map[string]string{"published": "2020-01-01"}),
		doc("new", map[string]string{"published": "2021-01-01"}),
	}
	dataType := "date:%Y-%m-%d"

	tests := []struct {
		op   filter.Operator
		want []string
	}{
		{filter.OpGreaterThan, []string{"new"}},
		{filter.OpGreaterOrEqual, []string{"old", "new"}},
		{filter.OpLessThan, nil},
		{filter.OpLessOrEqual, []string{"old"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			c := mustCond(t, "published", tt.op, []string{"2020-01-01"}, dataType)
			got := applyCondition(c, docs)
			if !sameIDs(got, tt.want...) {
				t.Errorf("kept %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestComparisonMalformedValueExcludes(t *testing.T) {
	docs := []result.MatchedDocument{
		doc("ok", map[string]string{"year": "2020"}),
		doc("bad", map[string]string{"year": "twenty-twenty"}),
	}
	c := mustCond(t, "year", filter.OpGreaterOrEqual, []string{"2000"}, filter.DataTypeNumeric)
	if got := applyCondition(c, docs); !sameIDs(got, "ok") {
		t.Errorf("kept %v, want [ok]", ids(got))
	}
}

func TestContainsWholeTokenMatching(t *testing.T) {
	docs := []result.MatchedDocument{
		doc("a", map[string]string{"skills": "Go, Redis, Kubernetes"}),
		doc("b", map[string]string{"skills": "Golang and Postgres"}),
	}
	// "go" must match the whole token "Go", not the prefix of "Golang"
	c := mustCond(t, "skills", filter.OpContains, []string{"go"}, "")
	if got := applyCondition(c, docs); !sameIDs(got, "a") {
		t.Errorf("kept %v, want [a]", ids(got))
	}
}

func TestContainsNotContainsComplement(t *testing.T) {
	docs := []result.MatchedDocument{
		doc("a", map[string]string{"skills": "go redis"}),
		doc("b", map[string]string{"skills": "rust postgres"}),
		doc("c", map[string]string{"other": "field"}), // skills absent
	}
	contains := mustCond(t, "skills", filter.OpContains, []string{"go"}, "")
	notContains := mustCond(t, "skills", filter.OpNotContains, []string{"go"}, "")

	kept := applyCondition(contains, docs)
	complement := applyCondition(notContains, docs)

	if len(kept)+len(complement) != 2 {
		t.Fatalf("contains kept %v, not_contains kept %v; union must be the present-field docs",
			ids(kept), ids(complement))
	}
	for _, k := range ids(kept) {
		for _, c := range ids(complement) {
			if k == c {
				t.Fatalf("document %s in both partitions", k)
			}
		}
	}
}

func TestAbsentKeyBehavior(t *testing.T) {
	docs := []result.MatchedDocument{doc("a", map[string]string{"other": "x"})}

	excluding := []filter.Condition{
		mustCond(t, "missing", filter.OpEqual, []string{"v"}, ""),
		mustCond(t, "missing", filter.OpContains, []string{"v"}, ""),
		mustCond(t, "missing", filter.OpGreaterThan, []string{"1"}, filter.DataTypeNumeric),
		mustCond(t, "missing", filter.OpExists, nil, ""),
	}
	for _, c := range excluding {
		if got := applyCondition(c, docs); len(got) != 0 {
			t.Errorf("%s on absent key kept %v", c.Op(), ids(got))
		}
	}
	include := mustCond(t, "missing", filter.OpNotExists, nil, "")
	if got := applyCondition(include, docs); !sameIDs(got, "a") {
		t.Errorf("not_exists kept %v, want [a]", ids(got))
	}
}

func TestEvaluateChainsSequentially(t *testing.T) {
	svc := New(&stubEncoder{}, &stubRetriever{}, 10, zap.NewNop())
	profile, _ := domain.ProfileFor(domain.General)

	docs := []result.MatchedDocument{
		doc("a", map[string]string{"lang": "go", "year": "2020"}),
		doc("b", map[string]string{"lang": "go", "year": "2022"}),
		doc("c", map[string]string{"lang": "rust", "year": "2022"}),
	}
	condA := mustCond(t, "lang", filter.OpEqual, []string{"go"}, "")
	condB := mustCond(t, "year", filter.OpGreaterThan, []string{"2021"}, filter.DataTypeNumeric)

	ctx := context.Background()
	chained := svc.evaluate(ctx, domain.General, profile, []filter.Condition{condA, condB}, docs)
	stepwise := svc.evaluate(ctx, domain.General, profile, []filter.Condition{condB},
		svc.evaluate(ctx, domain.General, profile, []filter.Condition{condA}, docs))

	if !sameIDs(chained, "b") {
		t.Errorf("chained kept %v, want [b]", ids(chained))
	}
	if !sameIDs(stepwise, ids(chained)...) {
		t.Errorf("evaluate([A,B]) = %v, evaluate([B], evaluate([A])) = %v", ids(chained), ids(stepwise))
	}
}

func TestEvaluateEmptyChainUnchanged(t *testing.T) {
	svc := New(&stubEncoder{}, &stubRetriever{}, 10, zap.NewNop())
	profile, _ := domain.ProfileFor(domain.General)

	docs := []result.MatchedDocument{doc("a", nil), doc("b", nil)}
	got := svc.evaluate(context.Background(), domain.General, profile, nil, docs)
	if !sameIDs(got, "a", "b") {
		t.Errorf("empty chain changed the set: %v", ids(got))
	}
}

func TestSemanticConditionPassesThrough(t *testing.T) {
	retriever := &stubRetriever{}
	svc := New(&stubEncoder{}, retriever, 10, zap.NewNop())
	profile, _ := domain.ProfileFor(domain.Paper)

	docs := []result.MatchedDocument{doc("a", nil), doc("b", nil)}
	c, err := filter.NewSemantic("abstract", "neural ranking", 5, 1.2)
	if err != nil {
		t.Fatalf("NewSemantic: %v", err)
	}

	got := svc.evaluate(context.Background(), domain.Paper, profile, []filter.Condition{c}, docs)
	if !sameIDs(got, "a", "b") {
		t.Errorf("semantic condition narrowed the set: %v", ids(got))
	}
	if len(retriever.queries) != 1 {
		t.Fatalf("requery count = %d, want 1", len(retriever.queries))
	}
	q := retriever.queries[0]
	if q.field != "abstract" || q.size != 5 {
		t.Errorf("requery field/size = %q/%d, want abstract/5", q.field, q.size)
	}
}
