package auth

import "errors"

var (
	ErrNotFound          = errors.New("auth: not found")
	ErrAlreadyExists     = errors.New("auth: already exists")
	ErrInvalidInput      = errors.New("auth: invalid input")
	ErrBadCredentials    = errors.New("auth: bad credentials")
	ErrAccountDisabled   = errors.New("auth: account disabled")
	ErrResetTokenInvalid = errors.New("auth: reset token invalid or expired")
)
