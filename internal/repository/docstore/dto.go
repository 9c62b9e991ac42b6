package docstore

import (
	"strconv"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

const (
	fieldTitle          = "title"
	fieldURL            = "url"
	fieldMimetype       = "mimetype"
	fieldExtension      = "extension"
	fieldSize           = "size"
	fieldTitleFixed     = "title_fixed"
	fieldGeneralEntryID = "general_entry_id"
	fieldDomainEntryID  = "domain_entry_id"
	fieldDomainIndex    = "domain_index"
)

func buildFields(doc document.Document) map[string]string {
	return map[string]string{
		fieldTitle:          doc.Title(),
		fieldURL:            doc.URL(),
		fieldMimetype:       doc.Mimetype(),
		fieldExtension:      doc.Extension(),
		fieldSize:           strconv.FormatInt(doc.Size(), 10),
		fieldTitleFixed:     strconv.FormatBool(doc.TitleFixed()),
		fieldGeneralEntryID: doc.GeneralEntryID(),
		fieldDomainEntryID:  doc.DomainEntryID(),
		fieldDomainIndex:    doc.DomainIndex(),
	}
}

func parseDocument(documentID string, m map[string]string) document.Document {
	size, _ := strconv.ParseInt(m[fieldSize], 10, 64)
	titleFixed, _ := strconv.ParseBool(m[fieldTitleFixed])
	return document.Reconstruct(
		documentID, m[fieldTitle], m[fieldURL],
		m[fieldMimetype], m[fieldExtension], size, titleFixed,
		m[fieldGeneralEntryID], m[fieldDomainEntryID], m[fieldDomainIndex],
	)
}
