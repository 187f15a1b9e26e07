package common

import "errors"

var codeErrors = map[string]error{
	CodeTokenExpired:    ErrTokenExpired,
	CodeVersionConflict: ErrVersionConflict,
	CodeAlreadyExists:   ErrorAlreadyExists,
	CodeNotFound:        ErrorNotFound,
	CodeGone:            ErrorGone,
	CodeValidation:      ErrorValidation,
	CodeUnauthorized:    ErrorUnauthorized,
	CodeForbidden:       ErrorForbidden,

	CodeLoginExists:         ErrorLoginAlreadyExists,
	CodeInvalidCredentials:  ErrorInvalidLoginPassword,
	CodeRefreshTokenExpired: ErrRefreshTokenExpired,
}

// ErrorForCode returns the sentinel error for a wire error code, or nil
// when the code is unknown.
func ErrorForCode(code string) error {
	return codeErrors[code]
}

// CodeForError is the inverse of ErrorForCode. Unknown errors map to
// CodeInternal.
func CodeForError(err error) string {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}
