package user

import "errors"

var (
	ErrInvalidInput = errors.New("user: invalid input")
	ErrNotFound     = errors.New("user: not found")
	ErrDuplicate    = errors.New("user: handle already taken")
)
