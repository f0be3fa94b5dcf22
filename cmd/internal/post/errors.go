package post

import "errors"

var (
	ErrInvalidInput = errors.New("post: invalid input")
	ErrUnknownUser  = errors.New("post: unknown user")
)
