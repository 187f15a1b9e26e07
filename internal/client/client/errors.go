package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/common"
)

var (
	// ErrUnavailable covers connectivity failures, timeouts and 5xx
	// answers. Callers retry with backoff.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthorized means the request was refused for the current user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAuthExpired means no usable credential is left; the user has to
	// sign in again.
	ErrAuthExpired = errors.New("authentication expired")
)

// ConflictError is returned when the backend rejects a write because its
// version moved on. Current is the server copy, or nil when the body did
// not include it.
type ConflictError struct {
	Current *models.GeoNote
}

func (e *ConflictError) Error() string {
	if e.Current == nil {
		return common.ErrVersionConflict.Error()
	}
	return fmt.Sprintf("%s: server is at version %d", common.ErrVersionConflict, e.Current.Version)
}

func (e *ConflictError) Unwrap() error { return common.ErrVersionConflict }

// StatusError is a non-2xx answer. It matches the sentinel for its wire
// code, and ErrUnavailable or ErrAuthExpired where the status implies it.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() []error {
	var errs []error
	if s := common.ErrorForCode(e.Code); s != nil {
		errs = append(errs, s)
	}
	switch {
	case e.Status >= http.StatusInternalServerError,
		e.Status == http.StatusTooManyRequests,
		e.Status == http.StatusRequestTimeout:
		errs = append(errs, ErrUnavailable)
	case e.Status == http.StatusUnauthorized && e.Code != common.CodeTokenExpired:
		errs = append(errs, ErrAuthExpired)
	case e.Status == http.StatusForbidden:
		errs = append(errs, ErrUnauthorized)
	}
	return errs
}
