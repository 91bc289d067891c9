// Package prune runs the reference pruning workflow for a solution. It loads
// the solution and its feed configuration, builds the reference graph, and
// removes every project or package reference that a sibling reference of the
// same project already supplies, rewriting project files in place.
package prune
