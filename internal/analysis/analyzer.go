package analysis

import (
	"errors"
	"fmt"
)

const (
	// NotCovered marks a verdict whose reference no sibling covers.
	NotCovered = -1

	dependencyLookupErrorTemplateConstant = "unable to determine dependencies of %s: %w"
)

// ErrDependencyDataUnavailable indicates that the dependencies of a reference target are unknown.
var ErrDependencyDataUnavailable = errors.New("dependency data unavailable")

// Verdict records the decision for one declared reference.
type Verdict[R any] struct {
	Reference R
	// Index is the declaration position of the reference.
	Index int
	// Required is false when a sibling already supplies the reference target.
	Required bool
	// CoveredBy is the declaration position of the covering sibling, or NotCovered.
	CoveredBy int
	// Undetermined is set on required references that a sibling with unknown dependencies might cover.
	Undetermined bool
}

// Analyze decides, for every reference, whether another reference in the same list depends on its target.
// Dependencies are looked up once per reference and verdicts are returned in declaration order.
func Analyze[R any](references []R, target func(R) Identifier, dependsOn func(R) ([]Identifier, error), policy UnknownPolicy) ([]Verdict[R], error) {
	verdicts := make([]Verdict[R], len(references))
	for referenceIndex, reference := range references {
		verdicts[referenceIndex] = Verdict[R]{
			Reference: reference,
			Index:     referenceIndex,
			Required:  true,
			CoveredBy: NotCovered,
		}
	}
	if len(references) < 2 {
		return verdicts, nil
	}

	dependencySets := make([]map[Identifier]struct{}, len(references))
	unknownDependencies := make([]bool, len(references))
	for referenceIndex, reference := range references {
		dependencies, dependencyError := dependsOn(reference)
		if dependencyError != nil {
			if errors.Is(dependencyError, ErrDependencyDataUnavailable) && policy != AbortUnknownPolicy {
				unknownDependencies[referenceIndex] = true
				continue
			}
			return nil, fmt.Errorf(dependencyLookupErrorTemplateConstant, target(reference), dependencyError)
		}

		dependencySet := make(map[Identifier]struct{}, len(dependencies))
		for _, dependency := range dependencies {
			dependencySet[dependency] = struct{}{}
		}
		dependencySets[referenceIndex] = dependencySet
	}

	for referenceIndex, reference := range references {
		referenceTarget := target(reference)
		siblingUnknown := false
		for siblingIndex := range references {
			if siblingIndex == referenceIndex {
				continue
			}
			if unknownDependencies[siblingIndex] {
				siblingUnknown = true
				continue
			}
			if coverageLeadsTo(verdicts, siblingIndex, referenceIndex) {
				continue
			}
			if _, covered := dependencySets[siblingIndex][referenceTarget]; covered {
				verdicts[referenceIndex].Required = false
				verdicts[referenceIndex].CoveredBy = siblingIndex
				break
			}
		}
		if verdicts[referenceIndex].Required {
			verdicts[referenceIndex].Undetermined = siblingUnknown
		}
	}

	return verdicts, nil
}

// coverageLeadsTo reports whether the chain of covering siblings starting at startIndex reaches targetIndex.
// Such a sibling is only present through targetIndex and cannot justify removing it.
func coverageLeadsTo[R any](verdicts []Verdict[R], startIndex int, targetIndex int) bool {
	currentIndex := startIndex
	for step := 0; step < len(verdicts); step++ {
		coveringIndex := verdicts[currentIndex].CoveredBy
		if coveringIndex == NotCovered {
			return false
		}
		if coveringIndex == targetIndex {
			return true
		}
		currentIndex = coveringIndex
	}
	return false
}

// Redundant returns the references whose verdicts are not required, in declaration order.
func Redundant[R any](verdicts []Verdict[R]) []Verdict[R] {
	redundant := make([]Verdict[R], 0)
	for _, verdict := range verdicts {
		if !verdict.Required {
			redundant = append(redundant, verdict)
		}
	}
	return redundant
}
