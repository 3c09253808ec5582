package regmint

import "errors"

var (
	ErrClosed               = errors.New("regmint: no database open")
	ErrBadDescriptor        = errors.New("regmint: bad table descriptor")
	ErrAllocationExhausted  = errors.New("regmint: collision retries exhausted, random source suspect")
	ErrConstraintViolation  = errors.New("regmint: identifier already in use")
	ErrBadRecord            = errors.New("regmint: bad stored record")
	ErrBadEvent             = errors.New("regmint: bad event record")
	ErrBackfillInconsistent = errors.New("regmint: missing-row count changed mid-batch")
)
