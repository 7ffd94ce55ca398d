package domain

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrMissingField = errors.New("missing required field")
	ErrUnknownStep  = errors.New("unknown workflow step")
)
