package drive

// Google-native MIME types.
const (
	FolderMimeType       = "application/vnd.google-apps.folder"
	GoogleDocMimeType    = "application/vnd.google-apps.document"
	GoogleSheetMimeType  = "application/vnd.google-apps.spreadsheet"
	GoogleSlidesMimeType = "application/vnd.google-apps.presentation"
)

// OpenDocument MIME types the Google-native formats are exported as.
const (
	ODTMimeType = "application/vnd.oasis.opendocument.text"
	ODSMimeType = "application/x-vnd.oasis.opendocument.spreadsheet"
	ODPMimeType = "application/vnd.oasis.opendocument.presentation"
)

var exportFormats = map[string]string{
	GoogleSlidesMimeType: ODPMimeType,
	GoogleDocMimeType:    ODTMimeType,
	GoogleSheetMimeType:  ODSMimeType,
}

// TranslateMimeType maps a Google-native document type to the OpenDocument
// type it is exported as. Any other type is returned unchanged.
func TranslateMimeType(mimeType string) string {
	if t, ok := exportFormats[mimeType]; ok {
		return t
	}
	return mimeType
}

// needsExport reports whether content of mimeType can only be fetched by
// conversion.
func needsExport(mimeType string) bool {
	_, ok := exportFormats[mimeType]
	return ok
}
