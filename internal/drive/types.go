package drive

import (
	"time"

	drive "google.golang.org/api/drive/v3"
)

// FileMetadata is a read-only snapshot of a Drive file. It is fetched per
// call and never cached.
type FileMetadata struct {
	// ID is the unique identifier for the file
	ID string `json:"id"`

	// Name is the display name of the file
	Name string `json:"name"`

	// MimeType is the MIME type of the file
	MimeType string `json:"mimeType"`

	// Parents are the IDs of the parent folders
	Parents []string `json:"parents,omitempty"`

	// DriveID is the shared drive the file lives in, empty for My Drive
	DriveID string `json:"driveId,omitempty"`

	// Size in bytes; not populated for folders and Google-native documents
	Size int64 `json:"size,omitempty"`

	ModifiedTime time.Time `json:"modifiedTime,omitzero"`
}

// IsFolder reports whether the file is a folder.
func (m *FileMetadata) IsFolder() bool {
	return m.MimeType == FolderMimeType
}

// Key selectors for ListSharedDriveFiles.
const (
	KeyByID   = "id"
	KeyByName = "name"
)

// convertToFileMetadata converts a Drive API File to our FileMetadata type
func convertToFileMetadata(f *drive.File) *FileMetadata {
	meta := &FileMetadata{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Parents:  f.Parents,
		DriveID:  f.DriveId,
		Size:     f.Size,
	}

	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			meta.ModifiedTime = t
		}
	}

	return meta
}
