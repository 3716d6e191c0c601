// Package io implements wasi:io hosts: poll, streams and error.
//
// Poll is the one blocking primitive. It waits on the Signal channels of the
// listed pollables with reflect.Select and returns as soon as any is ready.
// Stream reads and writes never block; the blocking-* variants are built on
// the same readiness signals.
package io
