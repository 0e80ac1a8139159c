package rbac

import "errors"

var (
	ErrNotFound     = errors.New("rbac: not found")
	ErrConflict     = errors.New("rbac: resource conflict")
	ErrInvalidInput = errors.New("rbac: invalid input")
	ErrUnauthorized = errors.New("rbac: unauthorized")
	ErrInvalidToken = errors.New("rbac: invalid token")
)
