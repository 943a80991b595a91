// Package drive is a thin client over the Google Drive v3 API for backing
// files up and fetching them back.
//
// A Client is built from a Config naming the token file and, optionally, the
// client registration file. It authenticates lazily: the first operation
// loads the stored credential, refreshing it or running the interactive
// browser flow as needed.
//
// Operations:
//   - GetMetadata fetches a file's metadata
//   - Download writes a file into the download directory, exporting
//     Google-native documents to OpenDocument formats
//   - Upload performs a resumable upload into a folder and records it in the
//     upload log
//   - UpdateContent replaces the content of an existing file in place
//   - MakeDirectory and MakeDirectoryIn create folders
//   - ListSharedDrives and ListSharedDriveFiles enumerate shared drives
//
// Failures are reported as *ConfigurationError, *AuthError, *NotFoundError or
// *TransferError where they apply; nothing is retried locally.
//
// Example usage:
//
//	client, err := drive.New(drive.Config{
//	    TokenFile:        "/home/me/.config/drivebkup/token.json",
//	    RegistrationFile: "/home/me/.config/drivebkup/client_secret.json",
//	    Logger:           logging.NewSlogAdapter(logger),
//	})
//	if err != nil {
//	    return err
//	}
//
//	id, err := client.Upload(ctx, folderID, "notes.txt", nil)
package drive
