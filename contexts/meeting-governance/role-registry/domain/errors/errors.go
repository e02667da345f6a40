package errors

import "errors"

var (
	ErrInvalidRoleInput = errors.New("invalid meeting role input")
	ErrRoleNotFound     = errors.New("meeting role not found")
)
