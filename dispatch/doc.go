// Package dispatch turns raw archive bytes into parsed archives.
//
// A Dispatcher hands each buffer to a single background worker goroutine,
// started on first use and reused for every later load. When the worker is
// unavailable, fails, or exceeds the configured timeout, the buffer is
// parsed synchronously on the calling goroutine with the same directory
// logic. Callers only observe the difference as latency: worker failures
// are logged and counted, never returned.
package dispatch
