package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// fileFields is the partial response selector for file resources.
const fileFields = "id, name, mimeType, parents, driveId, size, modifiedTime"

// drivesPageSize is the largest page Drives.List accepts.
const drivesPageSize = 100

// Service is the remote Drive API surface the Client needs. Every call maps
// to one HTTP request, apart from Create and Update, which may issue several
// when the media is uploaded in chunks.
type Service interface {
	Get(ctx context.Context, fileID string) (*drive.File, error)
	GetMedia(ctx context.Context, fileID string) (*http.Response, error)
	ExportMedia(ctx context.Context, fileID, mimeType string) (*http.Response, error)

	// Create creates file. With a nil media it creates a metadata-only
	// entry such as a folder.
	Create(ctx context.Context, file *drive.File, media io.Reader, progress googleapi.ProgressUpdater) (*drive.File, error)

	// Update replaces the content of an existing file, keeping its ID,
	// name and parents.
	Update(ctx context.Context, fileID string, media io.Reader, progress googleapi.ProgressUpdater) (*drive.File, error)

	// List returns one page of the files in a shared drive. An empty
	// pageToken requests the first page.
	List(ctx context.Context, pageToken, driveID string) (*drive.FileList, error)

	// ListDrives returns one page of the shared drives visible to the user.
	ListDrives(ctx context.Context, pageToken string) (*drive.DriveList, error)
}

// apiService implements Service over the generated Drive v3 client.
type apiService struct {
	files     *drive.FilesService
	drives    *drive.DrivesService
	chunkSize int
}

// NewService creates a Service issuing requests through httpClient, which
// must carry the OAuth2 credential. chunkSize is the resumable upload chunk
// size in bytes; 0 selects the library default.
func NewService(ctx context.Context, httpClient *http.Client, chunkSize int64) (Service, error) {
	svc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	size := googleapi.DefaultUploadChunkSize
	if chunkSize > 0 {
		size = int(chunkSize)
	}

	return &apiService{
		files:     svc.Files,
		drives:    svc.Drives,
		chunkSize: size,
	}, nil
}

func (s *apiService) Get(ctx context.Context, fileID string) (*drive.File, error) {
	return s.files.Get(fileID).
		Context(ctx).
		SupportsAllDrives(true).
		Fields(fileFields).
		Do()
}

func (s *apiService) GetMedia(ctx context.Context, fileID string) (*http.Response, error) {
	return s.files.Get(fileID).
		Context(ctx).
		SupportsAllDrives(true).
		Download()
}

func (s *apiService) ExportMedia(ctx context.Context, fileID, mimeType string) (*http.Response, error) {
	return s.files.Export(fileID, mimeType).
		Context(ctx).
		Download()
}

func (s *apiService) Create(ctx context.Context, file *drive.File, media io.Reader, progress googleapi.ProgressUpdater) (*drive.File, error) {
	call := s.files.Create(file).
		Context(ctx).
		SupportsAllDrives(true).
		Fields(fileFields)

	if media != nil {
		call = call.Media(media, googleapi.ContentType(file.MimeType), googleapi.ChunkSize(s.chunkSize))
		if progress != nil {
			call = call.ProgressUpdater(progress)
		}
	}

	return call.Do()
}

func (s *apiService) Update(ctx context.Context, fileID string, media io.Reader, progress googleapi.ProgressUpdater) (*drive.File, error) {
	call := s.files.Update(fileID, &drive.File{}).
		Context(ctx).
		SupportsAllDrives(true).
		Fields(fileFields).
		Media(media, googleapi.ChunkSize(s.chunkSize))

	if progress != nil {
		call = call.ProgressUpdater(progress)
	}

	return call.Do()
}

func (s *apiService) List(ctx context.Context, pageToken, driveID string) (*drive.FileList, error) {
	call := s.files.List().
		Context(ctx).
		Fields("nextPageToken, files(" + fileFields + ")")

	if driveID != "" {
		call = call.Corpora("drive").
			DriveId(driveID).
			IncludeItemsFromAllDrives(true).
			SupportsAllDrives(true)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	return call.Do()
}

func (s *apiService) ListDrives(ctx context.Context, pageToken string) (*drive.DriveList, error) {
	call := s.drives.List().
		Context(ctx).
		PageSize(drivesPageSize).
		Fields("nextPageToken, drives(id, name)")

	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	return call.Do()
}
