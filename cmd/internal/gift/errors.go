package gift

import "errors"

var (
	ErrInvalidInput = errors.New("gift: invalid input")
	ErrNotFound     = errors.New("gift: not found")
	ErrUnknownUser  = errors.New("gift: unknown user")
)
