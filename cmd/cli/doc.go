// Package cli constructs the refprune command-line interface, wiring the
// Cobra root command, the layered configuration loader, and structured
// logging around the pruning service.
package cli
