package auth

import "evently-waitlist/internal/shared/errs"

// ErrInvalidCredentials hides whether the email or the password was wrong
var ErrInvalidCredentials = errs.New("invalid email or password")
