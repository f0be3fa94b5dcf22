package actu

import "errors"

var (
	ErrInvalidInput = errors.New("actu: invalid input")
	ErrNotFound     = errors.New("actu: not found")
)
