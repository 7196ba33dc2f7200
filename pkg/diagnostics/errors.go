package diagnostics

import "errors"

var (
	ErrStoreClosed      = errors.New("event store is closed")
	ErrInvalidStorePath = errors.New("invalid event store path")
)
