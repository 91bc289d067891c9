package packages

import "strings"

// Metadata describes one resolved package.
type Metadata struct {
	ID        string
	Version   string
	SourceURL string
	// Dependencies lists the ids this package depends on directly.
	Dependencies []string
	// DependenciesKnown is false when the feed could not supply dependency data.
	DependenciesKnown bool
}

// CacheKey normalizes a package id for case-insensitive lookups.
func CacheKey(packageID string) string {
	return strings.ToLower(strings.TrimSpace(packageID))
}
