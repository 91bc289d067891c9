// Package pathutils resolves user supplied paths for solution, feed configuration, and report locations.
package pathutils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	homeShortcutConstant             = "~"
	forwardSlashRuneConstant         = '/'
	homeShortcutPrefixLengthConstant = 2
)

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// Resolver expands home shortcuts and anchors relative paths to a base directory.
type Resolver struct {
	homeDirectoryProvider HomeDirectoryProvider
	homeDirectoryOnce     sync.Once
	homeDirectory         string
}

// NewResolver constructs a Resolver backed by the operating system home lookup.
func NewResolver() *Resolver {
	return NewResolverWithProvider(os.UserHomeDir)
}

// NewResolverWithProvider constructs a Resolver with a custom home directory provider.
func NewResolverWithProvider(provider HomeDirectoryProvider) *Resolver {
	if provider == nil {
		provider = os.UserHomeDir
	}
	return &Resolver{homeDirectoryProvider: provider}
}

// Expand trims candidatePath and replaces a leading ~ with the home directory.
// Paths are returned unchanged when the home directory cannot be determined.
func (resolver *Resolver) Expand(candidatePath string) string {
	trimmedPath := strings.TrimSpace(candidatePath)
	if resolver == nil || !strings.HasPrefix(trimmedPath, homeShortcutConstant) {
		return trimmedPath
	}

	if trimmedPath != homeShortcutConstant && !isSeparator(trimmedPath[1]) {
		return trimmedPath
	}

	homeDirectory := resolver.resolveHomeDirectory()
	if len(homeDirectory) == 0 {
		return trimmedPath
	}
	if trimmedPath == homeShortcutConstant {
		return homeDirectory
	}
	return filepath.Join(homeDirectory, trimmedPath[homeShortcutPrefixLengthConstant:])
}

// Resolve expands candidatePath and joins it to baseDirectory unless it is already absolute.
// An empty candidate resolves to an empty string.
func (resolver *Resolver) Resolve(baseDirectory string, candidatePath string) string {
	expandedPath := resolver.Expand(candidatePath)
	if len(expandedPath) == 0 {
		return ""
	}
	if filepath.IsAbs(expandedPath) || len(baseDirectory) == 0 {
		return filepath.Clean(expandedPath)
	}
	return filepath.Join(baseDirectory, expandedPath)
}

func (resolver *Resolver) resolveHomeDirectory() string {
	resolver.homeDirectoryOnce.Do(func() {
		homeDirectory, homeDirectoryError := resolver.homeDirectoryProvider()
		if homeDirectoryError == nil {
			resolver.homeDirectory = homeDirectory
		}
	})
	return resolver.homeDirectory
}

func isSeparator(candidate byte) bool {
	return candidate == forwardSlashRuneConstant || candidate == os.PathSeparator
}
