// Package filesystem provides the file access seam used by the solution
// loader, the graph builder, and the reference pruner so that they can be
// exercised against in-memory fixtures.
package filesystem
