package feeds

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
)

const (
	environmentFileNameConstant         = ".env"
	environmentReferencePatternConstant = `%([A-Za-z_][A-Za-z0-9_]*)%`
)

var environmentReferencePattern = regexp.MustCompile(environmentReferencePatternConstant)

// EnvironmentFileReader parses an environment file into key/value pairs.
type EnvironmentFileReader func(path string) (map[string]string, error)

// LayeredEnvironmentLookup builds a lookup that consults the process environment first and then the
// values declared in the .env file of directory. A missing .env file is not an error.
func LayeredEnvironmentLookup(processLookup EnvironmentLookup, fileReader EnvironmentFileReader, directory string) (EnvironmentLookup, error) {
	resolvedProcessLookup := processLookup
	if resolvedProcessLookup == nil {
		resolvedProcessLookup = os.LookupEnv
	}

	resolvedFileReader := fileReader
	if resolvedFileReader == nil {
		resolvedFileReader = func(path string) (map[string]string, error) {
			return godotenv.Read(path)
		}
	}

	fileValues, readError := resolvedFileReader(filepath.Join(directory, environmentFileNameConstant))
	if readError != nil {
		if !errors.Is(readError, fs.ErrNotExist) {
			return nil, readError
		}
		fileValues = nil
	}

	return func(key string) (string, bool) {
		if value, found := resolvedProcessLookup(key); found {
			return value, true
		}
		value, found := fileValues[key]
		return value, found
	}, nil
}

// expandEnvironmentReferences substitutes %NAME% references, leaving unknown names untouched.
func expandEnvironmentReferences(value string, lookup EnvironmentLookup) string {
	if lookup == nil {
		return value
	}
	return environmentReferencePattern.ReplaceAllStringFunc(value, func(reference string) string {
		name := environmentReferencePattern.FindStringSubmatch(reference)[1]
		if resolved, found := lookup(name); found {
			return resolved
		}
		return reference
	})
}
