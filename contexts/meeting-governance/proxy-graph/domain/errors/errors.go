package errors

import "errors"

var (
	ErrInvalidGrantInput      = errors.New("invalid proxy grant input")
	ErrGrantNotFound          = errors.New("proxy grant not found")
	ErrSelfProxy              = errors.New("grantor and holder must differ")
	ErrChainTooDeep           = errors.New("proxy chain exceeds maximum depth")
	ErrCycleDetected          = errors.New("proxy chain contains a cycle")
	ErrParentGrantNotActive   = errors.New("parent proxy grant is not active")
	ErrSubDelegationForbidden = errors.New("parent proxy grant does not allow sub-delegation")
	ErrConflict               = errors.New("proxy grant conflict")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyConflict    = errors.New("idempotency key conflict")
)
