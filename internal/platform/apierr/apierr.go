package apierr

import (
	"errors"
	"fmt"
	"log"
	"net/http"
)

// -------------- Error model & mapping --------------

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT" // 状態遷移の不一致など
	CodeAlreadyExists   Code = "ALREADY_EXISTS"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func Invalid(msg string) *APIError     { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func Forbidden(msg string) *APIError   { return &APIError{Code: CodeForbidden, Message: msg} }
func NotFound(msg string) *APIError    { return &APIError{Code: CodeNotFound, Message: msg} }
func Conflict(msg string) *APIError    { return &APIError{Code: CodeConflict, Message: msg} }
func Duplicate(msg string) *APIError   { return &APIError{Code: CodeAlreadyExists, Message: msg} }
func Unavailable(msg string) *APIError { return &APIError{Code: CodeUnavailable, Message: msg} }

// CodeOf returns INTERNAL for errors outside the taxonomy.
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeForbidden:
			return http.StatusForbidden
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict, CodeAlreadyExists:
			return http.StatusConflict
		case CodeUnavailable:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// -------------- JSON body --------------

type ErrorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func Body(code Code, msg string) ErrorDTO {
	var e ErrorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// FromErr hides the text of unexpected errors from clients.
func FromErr(err error) ErrorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return Body(api.Code, api.Message)
	}
	log.Printf("[ERROR] unhandled: %v", err)
	return Body(CodeInternal, "internal error")
}
