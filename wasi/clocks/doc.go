// Package clocks implements WASI clock interfaces for time operations.
//
// Implements:
//   - wasi:clocks/monotonic-clock@0.2.8 - Monotonic time and timer pollables
//   - wasi:clocks/wall-clock@0.2.8 - Wall clock time
//
// Monotonic time is measured in nanoseconds from host creation. Subscribing
// to an instant or a duration yields a pollable that becomes ready when the
// deadline passes.
package clocks
