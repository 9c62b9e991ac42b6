package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrDocumentNotFound signals a missing document record.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrStatusNotFound signals a missing indexing status record.
	ErrStatusNotFound = errors.New("indexing status not found")
	// ErrUnsupportedFileType signals an upload the parser cannot handle.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrUnknownDomain signals an unrecognized domain label.
	ErrUnknownDomain = errors.New("unknown domain")
	// ErrInvalidDocument signals a document registration with missing or bad fields.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrInvalidFilter signals a malformed filter condition.
	ErrInvalidFilter = errors.New("invalid filter condition")
	// ErrReindexInProgress signals a concurrent re-index attempt on the same document.
	ErrReindexInProgress = errors.New("re-index already in progress")
	// ErrEncoderUnavailable signals an embedding encoder failure.
	ErrEncoderUnavailable = errors.New("embedding encoder unavailable")
)
