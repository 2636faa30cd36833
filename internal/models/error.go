package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource already exists")
	ErrBadRequest = errors.New("bad request")

	// Linking errors
	ErrAlreadyLinked     = errors.New("account is already linked")
	ErrWrongCode         = errors.New("wrong verification code")
	ErrNoPendingLink     = errors.New("no pending link request")
	ErrUnlinkDisabled    = errors.New("unlinking is disabled")
	ErrBlockedConflict   = errors.New("account is blocked, unblock it first")
	ErrTwoFactorConflict = errors.New("2FA is enabled, disable it first")
)
