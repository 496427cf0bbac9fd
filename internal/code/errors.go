package code

import "errors"

// ErrAlreadyPending is returned by StartCreation when an account creation is already pending for this email.
var ErrAlreadyPending = errors.New("an account creation is already pending for this email")
