// Package analysis decides which declared references of a project are redundant.
//
// A reference is redundant when another reference of the same kind, declared by
// the same project, already depends on its target one hop away. Every verdict is
// computed against the full declared list, so removals never influence other
// verdicts of the same pass.
package analysis
