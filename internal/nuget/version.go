package nuget

import (
	"strconv"
	"strings"
)

const (
	versionMetadataSeparatorConstant   = "+"
	versionPrereleaseSeparatorConstant = "-"
	versionPartSeparatorConstant       = "."
	versionZeroPartConstant            = "0"
	exactRangeOpenConstant             = "["
	exactRangeCloseConstant            = "]"
	rangeSeparatorConstant             = ","
	minimumVersionPartsConstant        = 3
	revisionPartCountConstant          = 4
)

// NormalizeVersion converts a version into the normalized form used by registration documents.
// Build metadata is dropped, missing minor and patch parts are padded with zeros, a zero
// revision is removed and the result is lower-cased. An exact range such as [1.2.3] is unwrapped.
func NormalizeVersion(version string) string {
	trimmedVersion := strings.TrimSpace(version)
	if strings.HasPrefix(trimmedVersion, exactRangeOpenConstant) &&
		strings.HasSuffix(trimmedVersion, exactRangeCloseConstant) &&
		!strings.Contains(trimmedVersion, rangeSeparatorConstant) {
		trimmedVersion = strings.TrimSpace(trimmedVersion[1 : len(trimmedVersion)-1])
	}

	if metadataIndex := strings.Index(trimmedVersion, versionMetadataSeparatorConstant); metadataIndex >= 0 {
		trimmedVersion = trimmedVersion[:metadataIndex]
	}

	releasePart := trimmedVersion
	prereleasePart := ""
	if prereleaseIndex := strings.Index(trimmedVersion, versionPrereleaseSeparatorConstant); prereleaseIndex >= 0 {
		releasePart = trimmedVersion[:prereleaseIndex]
		prereleasePart = trimmedVersion[prereleaseIndex:]
	}

	parts := strings.Split(releasePart, versionPartSeparatorConstant)
	for partIndex, part := range parts {
		if numericValue, parseError := strconv.Atoi(part); parseError == nil && numericValue >= 0 {
			parts[partIndex] = strconv.Itoa(numericValue)
		}
	}
	for len(parts) < minimumVersionPartsConstant {
		parts = append(parts, versionZeroPartConstant)
	}
	if len(parts) == revisionPartCountConstant && parts[revisionPartCountConstant-1] == versionZeroPartConstant {
		parts = parts[:minimumVersionPartsConstant]
	}

	return strings.ToLower(strings.Join(parts, versionPartSeparatorConstant) + prereleasePart)
}
