package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrDocumentNotFound = errors.New("document not found")
	ErrProcessNotFound  = errors.New("process not found")
	ErrUnsupportedRole  = errors.New("unsupported role")
	ErrUnknownIdentity  = errors.New("unknown identity")
	ErrValidation       = errors.New("validation failed")
)

// Validation failure reasons.
const (
	ReasonEmptyInput       = "empty input"
	ReasonNotEditable      = "not editable"
	ReasonAlreadyCompleted = "already completed"
)

// ValidationError reports a rejected mutation. errors.Is(err, ErrValidation) holds for it.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnsupportedRoleError signals a role value that escaped upstream validation.
type UnsupportedRoleError struct {
	Role Role
}

func (e UnsupportedRoleError) Error() string {
	return fmt.Sprintf("unsupported role %q", string(e.Role))
}

func (e UnsupportedRoleError) Is(target error) bool {
	return target == ErrUnsupportedRole
}
