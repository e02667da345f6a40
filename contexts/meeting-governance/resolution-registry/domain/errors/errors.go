package errors

import "errors"

var (
	ErrInvalidResolutionInput = errors.New("invalid resolution input")
	ErrResolutionNotFound     = errors.New("resolution not found")
	ErrResolutionSettled      = errors.New("resolution is already settled")
	ErrOutcomeAlreadyRecorded = errors.New("outcome already recorded for this round")
	ErrSecondRequired         = errors.New("resolution requires a second before proposal")
	ErrSelfSupersedeForbidden = errors.New("a resolution cannot supersede itself")
	ErrConflict               = errors.New("resolution conflict")
)
