package domain

import "fmt"

// KeyPrefix namespaces all redis keys written by docdex.
const KeyPrefix = "docdex:"

// Label is a document domain category. It selects which extractor, encoder
// model, and search index a document is routed to.
type Label string

const (
	// General is the catch-all domain. Every document gets a general index entry.
	General Label = "general"
	// Paper is the scientific-publication domain.
	Paper Label = "paper"
	// Resume is the recruitment domain.
	Resume Label = "resume"
)

// ParseLabel validates a domain label string.
func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case General, Paper, Resume:
		return Label(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
	}
}

// IsSpecialized reports whether the label maps to a dedicated domain index.
func (l Label) IsSpecialized() bool { return l == Paper || l == Resume }

// Profile describes how a domain is indexed and searched.
type Profile struct {
	Label Label
	// Index is the search index name for this domain.
	Index string
	// SemanticFields are metadata fields embedded per-field in addition to
	// being stored as text.
	SemanticFields []string
}

var profiles = map[Label]Profile{
	General: {Label: General, Index: "general"},
	Paper: {
		Label: Paper, Index: "paper",
		SemanticFields: []string{"abstract", "keywords"},
	},
	Resume: {
		Label: Resume, Index: "resume",
		SemanticFields: []string{"summary", "skills"},
	},
}

// ProfileFor returns the indexing profile for a label.
func ProfileFor(l Label) (Profile, error) {
	p, ok := profiles[l]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownDomain, l)
	}
	return p, nil
}

// AllProfiles returns every registered domain profile.
func AllProfiles() []Profile {
	return []Profile{profiles[General], profiles[Paper], profiles[Resume]}
}

// IsSemanticField reports whether the field is embedded per-field for the label.
func (p Profile) IsSemanticField(name string) bool {
	for _, f := range p.SemanticFields {
		if f == name {
			return true
		}
	}
	return false
}
