// Package errors maps failures of the operational API onto HTTP semantics.
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryDataError means the request carried invalid parameters or payload.
	CategoryDataError Category = iota + 1
	// CategoryUnauthorized means the request carried no valid credentials.
	CategoryUnauthorized
	// CategoryForbidden means the credentials lack the required role.
	CategoryForbidden
	// CategoryResourceNotFound means the addressed resource does not exist.
	CategoryResourceNotFound
	// CategoryDataConflict means the request conflicts with the current state.
	CategoryDataConflict
	// CategoryLocked means another process holds the resource.
	CategoryLocked
	// CategoryDependencyFailure means the database or node failed.
	CategoryDependencyFailure
	// CategoryGeneralError means the service failed in an unexpected way.
	CategoryGeneralError
	// CategoryUnavailable means the operation is disabled or not ready yet.
	CategoryUnavailable
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryUnauthorized:
		return "CategoryUnauthorized"
	case CategoryForbidden:
		return "CategoryForbidden"
	case CategoryResourceNotFound:
		return "CategoryResourceNotFound"
	case CategoryDataConflict:
		return "CategoryDataConflict"
	case CategoryLocked:
		return "CategoryLocked"
	case CategoryDependencyFailure:
		return "CategoryDependencyFailure"
	case CategoryUnavailable:
		return "CategoryUnavailable"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError carries a category and a client-safe message. Err is only logged.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is checks that err is a ServiceError with the given category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

func newError(cat Category, err error, message, fallback string) error {
	if err == nil {
		err = errors.New(fallback + ": " + message)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind "Internal Server Error".
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "Internal Server Error", "internal error")
}

// ResourceNotFoundError returns an error with category ResourceNotFound
func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message, "not found")
}

// BadRequestError returns an error with category DataError
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message, "bad request")
}

// ForbiddenError returns an error with category Forbidden
func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, message, "forbidden")
}

// UnAuthorizedError returns an error with category Unauthorized
func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, message, "unauthorized")
}

// ConflictError returns an error with category DataConflict
func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, message, "conflict")
}

// LockedError returns an error with category Locked
func LockedError(err error, message string) error {
	return newError(CategoryLocked, err, message, "locked")
}

// DependencyError returns an error with category DependencyFailure
func DependencyError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, message, "dependency failure")
}

// UnavailableError returns an error with category Unavailable
func UnavailableError(err error, message string) error {
	return newError(CategoryUnavailable, err, message, "unavailable")
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryUnauthorized:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryDataConflict:
		return http.StatusConflict
	case CategoryLocked:
		return http.StatusLocked
	case CategoryDependencyFailure:
		return http.StatusBadGateway
	case CategoryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
