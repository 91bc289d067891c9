// Package graph builds the project reference graph of a solution.
//
// Builder creates a Project for every solution entry before reading any
// project file, so project references resolve against the complete project
// list. Package references are resolved through a run-scoped resolver while the
// graph is built. Oracle exposes the one-hop dependencies of projects and
// packages to the necessity analysis.
package graph
