package packages

import (
	"errors"
	"fmt"
	"strings"
)

const (
	packageNotFoundTemplateConstant         = "package %s %s not found in configured sources [%s]"
	packageNotFoundFailuresTemplateConstant = "%s: %s"
	sourceListSeparatorConstant             = ", "
	failureListSeparatorConstant            = "; "
)

var (
	// ErrPackageNotFound indicates that no configured feed supplied metadata for a package.
	ErrPackageNotFound = errors.New("package not found")
	// ErrMetadataNotFound is returned by a single feed that does not know a package version.
	ErrMetadataNotFound = errors.New("package metadata not found")
)

// PackageNotFoundError reports the sources queried for a package that could not be resolved.
type PackageNotFoundError struct {
	PackageID string
	Version   string
	Sources   []string
	Failures  []string
}

func (notFoundError *PackageNotFoundError) Error() string {
	message := fmt.Sprintf(packageNotFoundTemplateConstant,
		notFoundError.PackageID,
		notFoundError.Version,
		strings.Join(notFoundError.Sources, sourceListSeparatorConstant),
	)
	if len(notFoundError.Failures) == 0 {
		return message
	}
	return fmt.Sprintf(packageNotFoundFailuresTemplateConstant, message, strings.Join(notFoundError.Failures, failureListSeparatorConstant))
}

// Is reports whether target is ErrPackageNotFound.
func (notFoundError *PackageNotFoundError) Is(target error) bool {
	return target == ErrPackageNotFound
}
