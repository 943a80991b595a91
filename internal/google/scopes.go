package google

import (
	drive "google.golang.org/api/drive/v3"
)

// DefaultOAuthScopes are the Google OAuth scopes requested when the
// configuration does not name any.
//
// The full drive scope is needed to list shared drives and the files in them;
// drive.file alone only covers files this client created.
var DefaultOAuthScopes = []string{
	drive.DriveScope,
}

// FileOnlyScopes restricts access to files created or opened by drivebkup.
// Sufficient for upload, mkdir and download of files it uploaded.
var FileOnlyScopes = []string{
	drive.DriveFileScope,
}

// Scope aliases accepted in place of scope URLs.
const (
	ScopeAliasFull = "full"
	ScopeAliasFile = "file"
)

// ExpandScopes replaces the aliases "full" and "file" with their scope URLs
// and drops duplicates. Anything else is passed through as a scope URL.
func ExpandScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		expanded := []string{s}
		switch s {
		case ScopeAliasFull:
			expanded = DefaultOAuthScopes
		case ScopeAliasFile:
			expanded = FileOnlyScopes
		}
		for _, e := range expanded {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}
