// Package filesystem implements WASI filesystem interfaces.
//
// Implements:
//   - wasi:filesystem/types@0.2.8 - Descriptors, streams over files, directory listings
//   - wasi:filesystem/preopens@0.2.8 - Preopened directories
//
// Every path is resolved relative to a directory descriptor and may not
// escape it. Streams and directory listings opened on a descriptor are owned
// by it; the descriptor cannot be dropped while any of them is live.
package filesystem
