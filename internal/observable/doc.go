// Package observable provides the small publish-subscribe primitives the
// sync engine is built on: a Map that reports add, update and delete events,
// and a Computed value that is recomputed lazily after any of its inputs
// change.
//
// Both types are safe for concurrent use. Notifications are delivered
// synchronously on the mutating goroutine.
package observable
