package document

import "fmt"

// Document is the persisted document record. The pipeline stages overwrite
// title/mimetype/extension/size (Extract) and the search entry references
// (Index); everything else is set at creation.
type Document struct {
	id         string
	title      string
	url        string
	mimetype   string
	extension  string
	size       int64
	titleFixed bool

	// Search entry references. The general entry is always populated on a
	// successful indexing run; the domain entry only for specialized labels.
	generalEntryID string
	domainEntryID  string
	domainIndex    string
}

// New validates and creates a Document in its pre-pipeline state.
func New(id, title, url string, titleFixed bool) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if url == "" {
		return Document{}, fmt.Errorf("storage URL is required for document %q", id)
	}
	return Document{id: id, title: title, url: url, titleFixed: titleFixed}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(
	id, title, url, mimetype, extension string, size int64, titleFixed bool,
	generalEntryID, domainEntryID, domainIndex string,
) Document {
	return Document{
		id: id, title: title, url: url,
		mimetype: mimetype, extension: extension, size: size,
		titleFixed:     titleFixed,
		generalEntryID: generalEntryID,
		domainEntryID:  domainEntryID,
		domainIndex:    domainIndex,
	}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Title returns the document title.
func (d *Document) Title() string { return d.title }

// URL returns the object-store URL of the raw upload.
func (d *Document) URL() string { return d.url }

// Mimetype returns the detected mimetype.
func (d *Document) Mimetype() string { return d.mimetype }

// Extension returns the detected file extension.
func (d *Document) Extension() string { return d.extension }

// Size returns the byte size of the upload.
func (d *Document) Size() int64 { return d.size }

// TitleFixed reports whether the caller pinned the title.
func (d *Document) TitleFixed() bool { return d.titleFixed }

// GeneralEntryID returns the general-domain search entry id, if indexed.
func (d *Document) GeneralEntryID() string { return d.generalEntryID }

// DomainEntryID returns the domain-specific search entry id, if present.
func (d *Document) DomainEntryID() string { return d.domainEntryID }

// DomainIndex returns the name of the domain-specific index, if present.
func (d *Document) DomainIndex() string { return d.domainIndex }

// SetExtracted overwrites the fields produced by the Extract stage.
// The title is only overwritten when it was not pinned by the caller.
func (d *Document) SetExtracted(title, mimetype, extension string, size int64) {
	if !d.titleFixed && title != "" {
		d.title = title
	}
	d.mimetype = mimetype
	d.extension = extension
	d.size = size
}

// Retitle overrides the title and pins it against later Extract overwrites.
func (d *Document) Retitle(title string) {
	d.title = title
	d.titleFixed = true
}

// SetEntryRefs overwrites the search entry references after indexing.
func (d *Document) SetEntryRefs(generalEntryID, domainEntryID, domainIndex string) {
	d.generalEntryID = generalEntryID
	d.domainEntryID = domainEntryID
	d.domainIndex = domainIndex
}

// ClearEntryRefs removes the search entry references after deletion.
func (d *Document) ClearEntryRefs() {
	d.generalEntryID = ""
	d.domainEntryID = ""
	d.domainIndex = ""
}

// HasDomainEntry reports whether a domain-specific entry is referenced.
func (d *Document) HasDomainEntry() bool { return d.domainEntryID != "" }
