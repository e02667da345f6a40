package errors

import "errors"

var (
	ErrInvalidWorkflowInput = errors.New("invalid workflow input")
	ErrInstanceNotFound     = errors.New("workflow instance not found")
	ErrInvalidStage         = errors.New("operation is not legal in the current stage")
	ErrStageLocked          = errors.New("stage is locked by an open voting session")
	ErrQuorumNotMet         = errors.New("quorum has not been achieved")
	ErrQuorumNotRecorded    = errors.New("quorum must be recorded before a voting stage")
	ErrNotController        = errors.New("caller is not the workflow controller")
	ErrTerminalState        = errors.New("workflow instance is in a terminal state")
	ErrNotFailed            = errors.New("workflow instance is not in a failed state")
	ErrRecoveryExhausted    = errors.New("workflow recovery attempt already used")
	ErrStaleInstance        = errors.New("workflow instance was modified concurrently")
	ErrSessionMismatch      = errors.New("voting session does not match the attached session")
	ErrConflict             = errors.New("workflow conflict")
)
