// Package cli implements WASI CLI interfaces for command-line programs.
//
// Implements:
//   - wasi:cli/environment@0.2.8 - Environment variables and arguments
//   - wasi:cli/exit@0.2.8 - Program exit, reported as *ExitError
//   - wasi:cli/stdin@0.2.8, stdout, stderr - Standard streams shared across handles
//   - wasi:cli/terminal-stdin@0.2.8, terminal-stdout, terminal-stderr - Terminal detection
package cli
