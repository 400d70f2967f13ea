package catalog

import "errors"

// Validation errors returned by the catalog service.
var (
	ErrInvalidContent       = errors.New("invalid content")
	ErrInvalidDrop          = errors.New("invalid drop")
	ErrInvalidProject       = errors.New("invalid funding project")
	ErrInvalidServiceConfig = errors.New("invalid catalog service config")
)
