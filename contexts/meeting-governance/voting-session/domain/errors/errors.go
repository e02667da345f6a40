package errors

import "errors"

var (
	ErrInvalidSessionInput    = errors.New("invalid voting session input")
	ErrSessionNotFound        = errors.New("voting session not found")
	ErrItemNotFound           = errors.New("session item not found")
	ErrSessionNotOpen         = errors.New("voting session is not open")
	ErrSessionSettled         = errors.New("voting session is already settled")
	ErrDeadlinePassed         = errors.New("voting deadline has passed")
	ErrDuplicateBallot        = errors.New("ballot already cast for this item and round")
	ErrVoterNotEligible       = errors.New("voter is not eligible in this meeting")
	ErrVoteDelegated          = errors.New("voter has delegated this vote to a proxy")
	ErrBallotsSealed          = errors.New("ballots are sealed for this anonymity level")
	ErrTallyFailed            = errors.New("tally could not be completed")
	ErrConflict               = errors.New("voting session conflict")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyConflict    = errors.New("idempotency key reused with a different request")
)
