package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/voxera/roomserver/internal/types"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

func NewConflictError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusConflict,
		Message:    err.Error(),
	}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    lower(http.StatusText(http.StatusMethodNotAllowed)),
	}
}

// domainError translates a coordinator error into an API error.
func domainError(err error) *ApiError {
	switch {
	case errors.Is(err, types.ErrRoomNotFound),
		errors.Is(err, types.ErrParticipantNotFound),
		errors.Is(err, types.ErrGiftNotFound),
		errors.Is(err, types.ErrPollNotFound):
		return NewNotFoundError()
	case errors.Is(err, types.ErrForbidden):
		return NewForbiddenError()
	case errors.Is(err, types.ErrRoomFull),
		errors.Is(err, types.ErrRoomInactive),
		errors.Is(err, types.ErrAlreadyMember),
		errors.Is(err, types.ErrNotAMember),
		errors.Is(err, types.ErrAlreadyVoted):
		return NewConflictError(err)
	case errors.Is(err, types.ErrInvalidInput),
		errors.Is(err, types.ErrInvalidRoleTransition):
		return NewBadRequestError()
	default:
		return NewInternalServerError(err)
	}
}
