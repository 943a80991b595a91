// Package google provides OAuth2 authentication and token management for the
// Google Drive API.
//
// Credentials come from two files: the registration file downloaded from the
// Google Cloud Console (client ID and secret) and the token file holding the
// bearer and refresh tokens. The Authenticator loads the token file, refreshes
// it through the registration when needed, and falls back to an interactive
// browser flow when no usable token exists. Refreshed tokens are written back
// to the token file.
package google
