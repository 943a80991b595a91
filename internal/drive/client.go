package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	drive "google.golang.org/api/drive/v3"

	"github.com/teemow/drivebkup/internal/google"
	"github.com/teemow/drivebkup/internal/instrumentation"
	"github.com/teemow/drivebkup/internal/logging"
)

// DefaultDescription is stored on every uploaded file unless the caller
// supplies a "description" in the extra metadata.
const DefaultDescription = "Backed up by drivebkup"

// Config holds everything a Client needs. It is populated once by the
// config layer; the Client never reads the environment.
type Config struct {
	// TokenFile is where the OAuth credential is stored. Required.
	TokenFile string

	// RegistrationFile is the client ID/secret JSON. Only needed when the
	// stored credential is missing or cannot be refreshed.
	RegistrationFile string

	// Scopes requested during interactive authorization.
	Scopes []string

	// DownloadDir receives downloaded files (default: current directory).
	DownloadDir string

	// ChunkSize is the resumable upload chunk size in bytes; 0 selects the
	// library default.
	ChunkSize int64

	Logger logging.Logger

	// UploadLog receives one "<local-path>\t<remote-id>" line per successful
	// upload. May be nil.
	UploadLog io.Writer

	// Progress, when set, is called with the file name and the percentage
	// completed as download and upload chunks arrive.
	Progress func(name string, percent int)

	Metrics *instrumentation.Metrics

	// Flow runs interactive authorization (default: a browser flow).
	Flow google.Flow
}

// Client is the Drive client wrapper. It is safe for concurrent use once
// constructed; authentication happens at most once at a time.
type Client struct {
	cfg     Config
	logger  logging.Logger
	metrics *instrumentation.Metrics

	mu         sync.Mutex
	service    Service
	newService func(ctx context.Context, hc *http.Client) (Service, error)

	logMu sync.Mutex
}

// New creates a Client. It fails with a *ConfigurationError when no token
// file is configured. A missing registration file is only reported once an
// interactive authorization is actually needed.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.TokenFile) == "" {
		return nil, &ConfigurationError{Msg: "token file path is not set"}
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "."
	}
	if cfg.Flow == nil {
		cfg.Flow = &google.BrowserFlow{Logger: slogLogger(cfg.Logger)}
	}

	c := &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	c.newService = func(ctx context.Context, hc *http.Client) (Service, error) {
		return NewService(ctx, hc, cfg.ChunkSize)
	}
	return c, nil
}

// Authenticate loads the stored credential, refreshing it when expired, or
// runs the interactive flow and overwrites the token file with the result.
// It may block on user interaction; cancel ctx to abort.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) (err error) {
	ctx, done := c.begin(ctx, instrumentation.OperationAuthenticate)
	defer func() { done(err) }()

	auth := &google.Authenticator{
		RegistrationFile: c.cfg.RegistrationFile,
		Scopes:           c.cfg.Scopes,
		Store:            google.NewFileTokenStore(c.cfg.TokenFile),
		Flow:             c.cfg.Flow,
		Logger:           slogLogger(c.logger),
		OnResult: func(result string) {
			c.metrics.RecordOAuthAuth(ctx, result)
		},
	}

	ts, err := auth.TokenSource(ctx)
	if err != nil {
		if errors.Is(err, google.ErrNoRegistration) || errors.Is(err, google.ErrInvalidRegistration) {
			return &ConfigurationError{Msg: "cannot authenticate", Err: err}
		}
		return &AuthError{Op: instrumentation.OperationAuthenticate, Err: err}
	}

	svc, err := c.newService(ctx, google.NewHTTPClient(context.WithoutCancel(ctx), ts))
	if err != nil {
		return err
	}

	c.service = svc
	c.logger.Debug("authenticated", logging.Path(c.cfg.TokenFile))
	return nil
}

// svc returns the service handle, authenticating first if needed.
func (c *Client) svc(ctx context.Context) (Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.service == nil {
		if err := c.authenticateLocked(ctx); err != nil {
			return nil, err
		}
	}
	return c.service, nil
}

// begin starts the span for op and returns a func that records the outcome
// in the span, the metrics and, on failure, the log.
func (c *Client) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := instrumentation.StartDriveSpan(ctx, op, attrs...)

	return ctx, func(err error) {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			c.logger.Error("drive operation failed", logging.Operation(op), logging.Err(err))
		}
		c.metrics.RecordDriveOperation(ctx, op, status, time.Since(start))
		instrumentation.EndSpan(span, err)
	}
}

// GetMetadata fetches the metadata of a single file.
func (c *Client) GetMetadata(ctx context.Context, fileID string) (meta *FileMetadata, err error) {
	ctx, done := c.begin(ctx, instrumentation.OperationGet,
		instrumentation.NewSpanAttributeBuilder().WithFileID(fileID).Build()...)
	defer func() { done(err) }()

	return c.getMetadata(ctx, fileID)
}

func (c *Client) getMetadata(ctx context.Context, fileID string) (*FileMetadata, error) {
	if fileID == "" {
		return nil, &ConfigurationError{Msg: "file ID is required"}
	}

	svc, err := c.svc(ctx)
	if err != nil {
		return nil, err
	}

	f, err := svc.Get(ctx, fileID)
	if err != nil {
		return nil, classify("get metadata", fileID, err)
	}
	return convertToFileMetadata(f), nil
}

// Download fetches a file into the download directory, naming it after the
// remote display name, and returns the local path. Google-native documents
// are exported to their OpenDocument equivalent; everything else is fetched
// as-is. A transfer that fails midway leaves the partial file behind and
// returns a *TransferError.
func (c *Client) Download(ctx context.Context, fileID string) (path string, err error) {
	ctx, done := c.begin(ctx, instrumentation.OperationDownload,
		instrumentation.NewSpanAttributeBuilder().WithFileID(fileID).Build()...)
	defer func() { done(err) }()

	meta, err := c.getMetadata(ctx, fileID)
	if err != nil {
		return "", err
	}
	if meta.IsFolder() {
		return "", fmt.Errorf("download %s: %q is a folder", fileID, meta.Name)
	}

	svc, err := c.svc(ctx)
	if err != nil {
		return "", err
	}

	var resp *http.Response
	total := meta.Size
	if needsExport(meta.MimeType) {
		exportType := TranslateMimeType(meta.MimeType)
		c.logger.Debug("exporting document", logging.FileID(fileID), slog.String("mime_type", exportType))
		resp, err = svc.ExportMedia(ctx, fileID, exportType)
		total = 0
	} else {
		resp, err = svc.GetMedia(ctx, fileID)
	}
	if err != nil {
		return "", classify("download", fileID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	path = filepath.Join(c.cfg.DownloadDir, localName(meta))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", fileID, err)
	}

	pw := &progressWriter{name: meta.Name, total: total, report: c.cfg.Progress, last: -1}
	n, copyErr := io.Copy(io.MultiWriter(f, pw), resp.Body)
	closeErr := f.Close()
	c.metrics.RecordTransferBytes(ctx, instrumentation.DirectionDownload, n)

	if copyErr != nil {
		return path, &TransferError{Op: "download", Path: path, Err: copyErr}
	}
	if closeErr != nil {
		return path, &TransferError{Op: "download", Path: path, Err: closeErr}
	}
	pw.finish()

	c.logger.Info("downloaded", logging.FileID(fileID), logging.Path(path), slog.Int64("bytes", n))
	return path, nil
}

// localName is the base name a download is written to.
func localName(meta *FileMetadata) string {
	name := filepath.Base(filepath.FromSlash(meta.Name))
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return meta.ID
	}
	return name
}

// Upload performs a resumable upload of localPath into folderID and returns
// the new file's ID. extra may carry a "description" overriding
// DefaultDescription; every other key is stored as a file property.
func (c *Client) Upload(ctx context.Context, folderID, localPath string, extra map[string]string) (id string, err error) {
	ctx, done := c.begin(ctx, instrumentation.OperationUpload,
		instrumentation.NewSpanAttributeBuilder().WithParentID(folderID).WithPath(localPath).Build()...)
	defer func() { done(err) }()

	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("upload %s: is a directory", localPath)
	}

	svc, err := c.svc(ctx)
	if err != nil {
		return "", err
	}

	file := uploadMetadata(folderID, localPath, extra)

	content, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}
	defer func() { _ = content.Close() }()

	var progress func(current, total int64)
	if c.cfg.Progress != nil {
		pw := &progressWriter{name: file.Name, total: info.Size(), report: c.cfg.Progress, last: -1}
		progress = func(current, _ int64) { pw.update(current) }
	}

	created, err := svc.Create(ctx, file, content, progress)
	if err != nil {
		classified := classify("upload", folderID, err)
		var authErr *AuthError
		var notFound *NotFoundError
		if errors.As(classified, &authErr) || errors.As(classified, &notFound) {
			return "", classified
		}
		return "", &TransferError{Op: "upload", Path: localPath, Err: err}
	}

	c.metrics.RecordTransferBytes(ctx, instrumentation.DirectionUpload, info.Size())
	c.recordUpload(localPath, created.Id)
	c.logger.Info("uploaded", logging.Path(localPath), logging.FileID(created.Id))

	return created.Id, nil
}

// UpdateContent replaces the content of the existing file fileID with
// localPath using a resumable upload. Name, parents and properties are left
// as they are.
func (c *Client) UpdateContent(ctx context.Context, fileID, localPath string) (id string, err error) {
	ctx, done := c.begin(ctx, instrumentation.OperationUpdate,
		instrumentation.NewSpanAttributeBuilder().WithFileID(fileID).WithPath(localPath).Build()...)
	defer func() { done(err) }()

	if fileID == "" {
		return "", &ConfigurationError{Msg: "file ID is required"}
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("update %s: %w", localPath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("update %s: is a directory", localPath)
	}

	svc, err := c.svc(ctx)
	if err != nil {
		return "", err
	}

	content, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("update %s: %w", localPath, err)
	}
	defer func() { _ = content.Close() }()

	var progress func(current, total int64)
	if c.cfg.Progress != nil {
		pw := &progressWriter{name: filepath.Base(localPath), total: info.Size(), report: c.cfg.Progress, last: -1}
		progress = func(current, _ int64) { pw.update(current) }
	}

	updated, err := svc.Update(ctx, fileID, content, progress)
	if err != nil {
		classified := classify("update", fileID, err)
		var authErr *AuthError
		var notFound *NotFoundError
		if errors.As(classified, &authErr) || errors.As(classified, &notFound) {
			return "", classified
		}
		return "", &TransferError{Op: "update", Path: localPath, Err: err}
	}

	c.metrics.RecordTransferBytes(ctx, instrumentation.DirectionUpload, info.Size())
	c.recordUpload(localPath, updated.Id)
	c.logger.Info("updated", logging.Path(localPath), logging.FileID(updated.Id))

	return updated.Id, nil
}

func uploadMetadata(folderID, localPath string, extra map[string]string) *drive.File {
	name := filepath.Base(localPath)

	file := &drive.File{
		Name:        name,
		Description: DefaultDescription,
		MimeType:    detectMimeType(name),
	}
	if folderID != "" {
		file.Parents = []string{folderID}
	}

	for k, v := range extra {
		if k == "description" {
			file.Description = v
			continue
		}
		if file.Properties == nil {
			file.Properties = make(map[string]string, len(extra))
		}
		file.Properties[k] = v
	}

	return file
}

// detectMimeType guesses the MIME type from the file extension. Empty means
// unknown and lets the upload sniff the content instead.
func detectMimeType(name string) string {
	t := mime.TypeByExtension(filepath.Ext(name))
	if t == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		return ""
	}
	return mediaType
}

func (c *Client) recordUpload(localPath, id string) {
	if c.cfg.UploadLog == nil {
		return
	}

	c.logMu.Lock()
	defer c.logMu.Unlock()

	if _, err := fmt.Fprintf(c.cfg.UploadLog, "%s\t%s\n", localPath, id); err != nil {
		c.logger.Warn("failed to write upload log", logging.Path(localPath), logging.Err(err))
	}
}

// MakeDirectory creates a folder at the root of My Drive and returns its ID.
// Surrounding whitespace is trimmed from name.
func (c *Client) MakeDirectory(ctx context.Context, name string) (string, error) {
	return c.MakeDirectoryIn(ctx, name, "")
}

// MakeDirectoryIn creates a folder inside parentID, or at the root when
// parentID is empty, and returns its ID.
func (c *Client) MakeDirectoryIn(ctx context.Context, name, parentID string) (id string, err error) {
	ctx, done := c.begin(ctx, instrumentation.OperationMkdir,
		instrumentation.NewSpanAttributeBuilder().WithParentID(parentID).Build()...)
	defer func() { done(err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ConfigurationError{Msg: "folder name is required"}
	}

	svc, err := c.svc(ctx)
	if err != nil {
		return "", err
	}

	folder := &drive.File{
		Name:     name,
		MimeType: FolderMimeType,
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	created, err := svc.Create(ctx, folder, nil, nil)
	if err != nil {
		return "", classify("mkdir", parentID, err)
	}

	c.logger.Info("created folder", slog.String("name", name), logging.FileID(created.Id))
	return created.Id, nil
}

// ListSharedDriveFiles returns every file in the shared drive keyed by ID or
// by display name, as selected by keyBy ("id" or "name"). When two
// files share a key the later one wins and a warning is logged.
func (c *Client) ListSharedDriveFiles(ctx context.Context, driveID, keyBy string) (files map[string]*FileMetadata, err error) {
	ctx, done := c.begin(ctx, instrumentation.OperationListFiles,
		instrumentation.NewSpanAttributeBuilder().WithDriveID(driveID).Build()...)
	defer func() { done(err) }()

	keyBy = strings.ToLower(strings.TrimSpace(keyBy))
	if keyBy != KeyByID && keyBy != KeyByName {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("key_by must be %q or %q, got %q", KeyByID, KeyByName, keyBy)}
	}
	if driveID == "" {
		return nil, &ConfigurationError{Msg: "shared drive ID is required"}
	}

	svc, err := c.svc(ctx)
	if err != nil {
		return nil, err
	}

	var all []*FileMetadata
	token := ""
	for {
		page, next, err := listPage(ctx, svc, driveID, token)
		if err != nil {
			return nil, classify("list files", driveID, err)
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		token = next
	}

	files = make(map[string]*FileMetadata, len(all))
	for _, f := range all {
		key := f.ID
		if keyBy == KeyByName {
			key = f.Name
		}
		if prev, ok := files[key]; ok {
			c.logger.Warn("duplicate key in shared drive listing, keeping the later file",
				logging.DriveID(driveID), slog.String("key", key),
				slog.String("dropped_id", prev.ID), logging.FileID(f.ID))
		}
		files[key] = f
	}

	c.logger.Debug("listed shared drive", logging.DriveID(driveID), slog.Int("files", len(files)))
	return files, nil
}

// listPage fetches one page. An empty next token means there are no further
// pages.
func listPage(ctx context.Context, svc Service, driveID, token string) ([]*FileMetadata, string, error) {
	list, err := svc.List(ctx, token, driveID)
	if err != nil {
		return nil, "", err
	}

	files := make([]*FileMetadata, len(list.Files))
	for i, f := range list.Files {
		files[i] = convertToFileMetadata(f)
	}
	return files, list.NextPageToken, nil
}

// ListSharedDrives returns the shared drives visible to the user as a map of
// drive ID to display name.
func (c *Client) ListSharedDrives(ctx context.Context) (drives map[string]string, err error) {
	ctx, done := c.begin(ctx, instrumentation.OperationListDrives)
	defer func() { done(err) }()

	svc, err := c.svc(ctx)
	if err != nil {
		return nil, err
	}

	drives = make(map[string]string)
	token := ""
	for {
		list, err := svc.ListDrives(ctx, token)
		if err != nil {
			return nil, classify("list shared drives", "", err)
		}
		for _, d := range list.Drives {
			drives[d.Id] = d.Name
		}
		if list.NextPageToken == "" {
			break
		}
		token = list.NextPageToken
	}

	return drives, nil
}

// progressWriter turns a byte count into whole-percent progress reports,
// calling report only when the percentage changes.
type progressWriter struct {
	name    string
	total   int64
	current int64
	last    int
	report  func(name string, percent int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.update(p.current + int64(len(b)))
	return len(b), nil
}

func (p *progressWriter) update(current int64) {
	p.current = current
	if p.report == nil || p.total <= 0 {
		return
	}

	pct := int(current * 100 / p.total)
	if pct > 100 {
		pct = 100
	}
	if pct != p.last {
		p.last = pct
		p.report(p.name, pct)
	}
}

// finish reports completion when the size was unknown up front.
func (p *progressWriter) finish() {
	if p.report != nil && p.last != 100 {
		p.last = 100
		p.report(p.name, 100)
	}
}

// slogLogger unwraps the *slog.Logger behind l, if any.
func slogLogger(l logging.Logger) *slog.Logger {
	if a, ok := l.(interface{ Logger() *slog.Logger }); ok {
		return a.Logger()
	}
	return slog.Default()
}
