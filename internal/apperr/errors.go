package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrSelfConnection = errors.New("connection source equals target")
	ErrNoNotebook     = errors.New("no notebook open")
)
