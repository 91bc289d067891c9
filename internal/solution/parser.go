package solution

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/temirov/refprune/internal/filesystem"
)

const (
	projectEntryPatternConstant          = `(?i)Project\("\{[0-9A-F\-]{36}\}"\)\s*=\s*"(?P<name>[^"]+)"\s*,\s*"(?P<path>[^"]+\.(?:cs|fs|vb)proj)"\s*,\s*"\{[0-9A-F\-]{36}\}"`
	projectNameGroupConstant             = "name"
	projectPathGroupConstant             = "path"
	windowsPathSeparatorConstant         = `\`
	forwardPathSeparatorConstant         = "/"
	solutionPathMissingMessageConstant   = "solution path must be provided"
	solutionReadErrorTemplateConstant    = "unable to read solution %s: %w"
	solutionResolveErrorTemplateConstant = "unable to resolve solution path %s: %w"
)

var projectEntryPattern = regexp.MustCompile(projectEntryPatternConstant)

// Entry describes one member project declared by a solution.
type Entry struct {
	Name string
	Path string
}

// Solution captures a parsed solution manifest.
type Solution struct {
	Path      string
	Directory string
	Entries   []Entry
}

// Parse extracts project entries from solution text, resolving their paths against rootDirectory.
// Entries repeating an already listed path are ignored.
func Parse(content string, rootDirectory string) []Entry {
	nameIndex := projectEntryPattern.SubexpIndex(projectNameGroupConstant)
	pathIndex := projectEntryPattern.SubexpIndex(projectPathGroupConstant)

	seenPaths := make(map[string]struct{})
	var entries []Entry
	for _, line := range strings.Split(content, "\n") {
		match := projectEntryPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		projectPath := ResolveDeclaredPath(rootDirectory, match[pathIndex])
		if _, alreadySeen := seenPaths[projectPath]; alreadySeen {
			continue
		}
		seenPaths[projectPath] = struct{}{}

		entries = append(entries, Entry{
			Name: strings.TrimSpace(match[nameIndex]),
			Path: projectPath,
		})
	}

	return entries
}

// Load reads the solution at solutionPath and parses its project entries.
func Load(fileSystem filesystem.FileSystem, solutionPath string) (Solution, error) {
	trimmedPath := strings.TrimSpace(solutionPath)
	if len(trimmedPath) == 0 {
		return Solution{}, errors.New(solutionPathMissingMessageConstant)
	}

	resolvedFileSystem := filesystem.Resolve(fileSystem)

	absolutePath, absError := resolvedFileSystem.Abs(trimmedPath)
	if absError != nil {
		return Solution{}, fmt.Errorf(solutionResolveErrorTemplateConstant, trimmedPath, absError)
	}

	contents, readError := resolvedFileSystem.ReadFile(absolutePath)
	if readError != nil {
		return Solution{}, fmt.Errorf(solutionReadErrorTemplateConstant, absolutePath, readError)
	}

	solutionDirectory := filepath.Dir(absolutePath)

	return Solution{
		Path:      absolutePath,
		Directory: solutionDirectory,
		Entries:   Parse(string(contents), solutionDirectory),
	}, nil
}

// ResolveDeclaredPath converts a path written in a solution or project file into a cleaned absolute path.
// Declarations use backslash separators regardless of the host platform.
func ResolveDeclaredPath(baseDirectory string, declaredPath string) string {
	normalizedPath := strings.ReplaceAll(strings.TrimSpace(declaredPath), windowsPathSeparatorConstant, forwardPathSeparatorConstant)
	localPath := filepath.FromSlash(normalizedPath)
	if filepath.IsAbs(localPath) {
		return filepath.Clean(localPath)
	}
	return filepath.Clean(filepath.Join(baseDirectory, localPath))
}
