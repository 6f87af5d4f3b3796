package domain

import "errors"

// ErrSnapshotUnavailable wraps any snapshot fetch failure: network errors,
// non-success status codes and malformed payloads. Callers must treat it as
// retryable.
var ErrSnapshotUnavailable = errors.New("order book snapshot unavailable")
