package common

// AuthorizationHeaderName carries the bearer access token on REST calls.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token in the Authorization header.
const BearerPrefix = "Bearer "

// Error codes returned in JSON error bodies by the backend.
const (
	CodeTokenExpired    = "token_expired"
	CodeVersionConflict = "version_conflict"
	CodeAlreadyExists   = "already_exists"
	CodeNotFound        = "not_found"
	CodeGone            = "gone"
	CodeValidation      = "validation"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeInternal        = "internal"

	CodeLoginExists         = "login_exists"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeRefreshTokenExpired = "refresh_token_expired"
)
