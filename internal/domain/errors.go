package domain

import "errors"

var (
	// ErrMalformedPayload means no parser recognized the payload shape. Run-fatal.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrNoRecords means a recognized payload produced zero observations. Run-fatal.
	ErrNoRecords = errors.New("payload produced no records")
	// ErrInvalidTarget marks a structurally invalid target descriptor.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrConnect marks a transport or auth failure reaching a target.
	ErrConnect = errors.New("connect target")
	// ErrInsert marks a failed write after connecting. The write was rolled back.
	ErrInsert = errors.New("insert batch")
)
