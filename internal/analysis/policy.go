package analysis

import (
	"fmt"
	"strings"
)

// UnknownPolicy controls how references with unknown dependency data are treated.
type UnknownPolicy string

// Supported policies.
const (
	// KeepUnknownPolicy never counts a sibling with unknown dependencies as a cover.
	KeepUnknownPolicy UnknownPolicy = "keep"
	// AbortUnknownPolicy fails the analysis when dependency data is unavailable.
	AbortUnknownPolicy UnknownPolicy = "abort"
)

const unsupportedPolicyTemplateConstant = "unsupported unknown dependency policy %q (expected keep or abort)"

// ParseUnknownPolicy interprets a textual policy. An empty value selects KeepUnknownPolicy.
func ParseUnknownPolicy(value string) (UnknownPolicy, error) {
	switch UnknownPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", KeepUnknownPolicy:
		return KeepUnknownPolicy, nil
	case AbortUnknownPolicy:
		return AbortUnknownPolicy, nil
	default:
		return "", fmt.Errorf(unsupportedPolicyTemplateConstant, value)
	}
}
