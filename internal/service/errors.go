package service

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyApplied       = errors.New("already applied to this request")
	ErrBusinessCardRequired = errors.New("business card must be registered before applying")
	ErrOwnRequest           = errors.New("cannot apply to own request")
	ErrNotRequestOwner      = errors.New("only the request owner can do this")
	ErrRequestNotFound      = errors.New("request not found")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrRequestNotOpen       = errors.New("request is not open for applications")
)

// ValidationError ошибка заполнения формы, показывается у поля
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
