package api

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	CategoryNotFound     = "not-found"
	CategoryForbidden    = "forbidden"
	CategoryInvalidInput = "invalid-input"
	CategoryRoomFull     = "room-full"
	CategoryInternal     = "internal"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Category   string `json:"category"`
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
		Category:   CategoryInvalidInput,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Category:   CategoryNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Category:   CategoryForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

func NewGoneError(message string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusGone,
		Category:   CategoryNotFound,
		Message:    message,
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Category:   CategoryInternal,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}
