package modelprep

import "errors"

// Exported errors for library consumers.
var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("modelprep: client is closed")

	// ErrNoHistory indicates run history was disabled for this client.
	ErrNoHistory = errors.New("modelprep: run history disabled")
)
