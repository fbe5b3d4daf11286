package webapi

import (
	"net/http"
	"strconv"
	"strings"
)

// ErrorType identifies a known domain error class. It travels in the
// x-error-type header, with Code in x-error-code.
type ErrorType string

// Known error types.
const (
	ValidationError      ErrorType = "validation"
	BusinessError        ErrorType = "business"
	AuthorizationError   ErrorType = "authorization"
	ConcurrencyError     ErrorType = "concurrency"
	NotFoundError        ErrorType = "not_found"
	ConflictError        ErrorType = "conflict"
	DuplicateError       ErrorType = "duplicate"
	AuthenticationError  ErrorType = "authentication"
	TransientError       ErrorType = "transient"
	DataConsistencyError ErrorType = "data_consistency"
	UnhandledError       ErrorType = "unhandled"
)

var errorTypeCodes = map[ErrorType]int{
	ValidationError:      1,
	BusinessError:        2,
	AuthorizationError:   3,
	ConcurrencyError:     4,
	NotFoundError:        5,
	ConflictError:        6,
	DuplicateError:       7,
	AuthenticationError:  8,
	TransientError:       9,
	DataConsistencyError: 10,
	UnhandledError:       88,
}

var errorTypeStatus = map[ErrorType]int{
	ValidationError:      http.StatusBadRequest,
	BusinessError:        http.StatusBadRequest,
	AuthorizationError:   http.StatusForbidden,
	ConcurrencyError:     http.StatusPreconditionFailed,
	NotFoundError:        http.StatusNotFound,
	ConflictError:        http.StatusConflict,
	DuplicateError:       http.StatusConflict,
	AuthenticationError:  http.StatusUnauthorized,
	TransientError:       http.StatusServiceUnavailable,
	DataConsistencyError: http.StatusConflict,
	UnhandledError:       http.StatusInternalServerError,
}

// Code returns the numeric code of t, or 0 for an unknown type.
func (t ErrorType) Code() int {
	return errorTypeCodes[t]
}

// StatusCode returns the HTTP status conventionally used for t.
func (t ErrorType) StatusCode() int {
	if s, ok := errorTypeStatus[t]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// IsKnown reports whether t is one of the declared error types.
func (t ErrorType) IsKnown() bool {
	_, ok := errorTypeCodes[t]
	return ok
}

func (t ErrorType) String() string {
	return string(t)
}

// ParseErrorType normalizes a header value into an ErrorType. Matching
// ignores case, '_' and '-', and an "Error" suffix, so "BusinessError",
// "business" and "business-error" are equivalent. A numeric value is matched
// against the error codes. Unknown values are returned as-is.
func ParseErrorType(v string) ErrorType {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if n, err := strconv.Atoi(v); err == nil {
		for t, code := range errorTypeCodes {
			if code == n {
				return t
			}
		}
		return ErrorType(v)
	}

	key := normalizeErrorType(v)
	for t := range errorTypeCodes {
		if normalizeErrorType(string(t)) == key {
			return t
		}
	}
	return ErrorType(v)
}

func normalizeErrorType(v string) string {
	v = strings.ToLower(v)
	v = strings.NewReplacer("_", "", "-", "", " ", "").Replace(v)
	return strings.TrimSuffix(v, "error")
}
