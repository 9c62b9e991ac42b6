package extract

import "github.com/kailas-cloud/docdex/internal/domain"

// Tokens arrive lemmatized, so the vocabularies hold lemma forms
// ("keywords" matches as "keyword", "skills" as "skill").
var (
	paperVocab = map[string]bool{
		"abstract": true, "keyword": true, "citation": true, "doi": true,
		"preprint": true, "journal": true, "conference": true, "dataset": true,
		"hypothesis": true, "methodology": true, "reference": true,
		"figure": true, "equation": true, "arxiv": true,
	}
	resumeVocab = map[string]bool{
		"resume": true, "curriculum": true, "vitae": true, "skill": true,
		"employment": true, "internship": true, "bachelor": true,
		"master": true, "certification": true, "linkedin": true,
		"objective": true, "proficient": true, "responsibility": true,
	}
)

// minClassifyHits is the score a specialized label needs before the
// classifier picks it over general.
const minClassifyHits = 3

// Classifier assigns a domain label from preprocessed tokens. It only
// runs when the caller did not pin a label.
type Classifier struct{}

func NewClassifier() *Classifier { return &Classifier{} }

// Classify counts vocabulary hits per specialized domain and returns the
// winner, or general when no domain scores enough.
func (c *Classifier) Classify(tokens []string) domain.Label {
	var paper, resume int
	for _, tok := range tokens {
		if paperVocab[tok] {
			paper++
		}
		if resumeVocab[tok] {
			resume++
		}
	}
	switch {
	case paper >= minClassifyHits && paper >= resume:
		return domain.Paper
	case resume >= minClassifyHits:
		return domain.Resume
	default:
		return domain.General
	}
}
