package domain

import "errors"

// Error kinds shared by the pipeline and the query boundary. Concrete errors wrap
// one of these so callers can classify them with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	ErrPersistence   = errors.New("persistence failed")
	ErrConfiguration = errors.New("invalid configuration")
)
