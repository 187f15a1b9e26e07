package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/server/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrorInvalidLoginPassword),
		errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorGone):
		return http.StatusGone
	case errors.Is(err, common.ErrVersionConflict),
		errors.Is(err, common.ErrorAlreadyExists),
		errors.Is(err, common.ErrorLoginAlreadyExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError is the single place sentinel errors become HTTP answers.
// Internal errors are logged and answered without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := api.Error{Error: err.Error(), Code: common.CodeForError(err)}

	if errors.Is(err, common.ErrInvalidToken) {
		body.Code = common.CodeUnauthorized
	}
	var ce *services.ConflictError
	if errors.As(err, &ce) && ce.Current != nil {
		c := toAPICapsule(ce.Current)
		body.Current = &c
	}
	if status == http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}
