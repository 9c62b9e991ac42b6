package result

// Value is one metadata field of a matched document. Semantic text fields
// carry their stored embedding next to the text; plain fields have a nil
// embedding.
type Value struct {
	Text      string
	Embedding []float32
}

// IsSemantic reports whether the field carries a per-field embedding.
func (v Value) IsSemantic() bool { return v.Embedding != nil }

// MatchedDocument is a single search hit with its flattened metadata view.
type MatchedDocument struct {
	id       string
	score    float64
	title    string
	metadata map[string]Value
}

// New creates a matched document.
func New(id string, score float64, title string, metadata map[string]Value) MatchedDocument {
	return MatchedDocument{id: id, score: score, title: title, metadata: metadata}
}

// ID returns the document identifier.
func (m *MatchedDocument) ID() string { return m.id }

// Score returns the non-negative relevance score.
func (m *MatchedDocument) Score() float64 { return m.score }

// Title returns the document title.
func (m *MatchedDocument) Title() string { return m.title }

// Metadata returns the extracted field view.
func (m *MatchedDocument) Metadata() map[string]Value { return m.metadata }

// Field returns a metadata value and whether the field is present.
func (m *MatchedDocument) Field(key string) (Value, bool) {
	v, ok := m.metadata[key]
	return v, ok
}
