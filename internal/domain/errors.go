// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrQueueFull indicates the session wait queue is at capacity; the request
// is rejected synchronously and never enqueued.
var ErrQueueFull = errors.New("session queue full")

// ErrSessionNotFound indicates an operation referenced a session id with no
// live session behind it.
var ErrSessionNotFound = errors.New("session not found")
