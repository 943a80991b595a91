// Package cmd implements the command-line interface for drivebkup.
//
// This package provides the following commands:
//   - auth: Authorize access to Google Drive and store the credential
//   - meta: Print a file's metadata as JSON
//   - download: Download files, exporting Google Docs to OpenDocument formats
//   - upload: Upload files into a folder
//   - mkdir: Create a folder
//   - shared-drives: List accessible shared drives
//   - list-files: List the files of a shared drive keyed by ID or name
//   - backup: Mirror a directory tree into a folder, incrementally
//   - version: Display version information
//
// Every command resolves configuration from defaults, the TOML config file,
// a .env file, environment variables and flags, in that order.
package cmd
