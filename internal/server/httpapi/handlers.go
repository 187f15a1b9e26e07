package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/server/models"
	"github.com/dmitrijs2005/geocapsule/internal/server/services"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		s.writeError(w, r, fmt.Errorf("%w: %v", common.ErrorValidation, err))
		return false
	}
	return true
}

func toAPICapsule(c *models.Capsule) api.Capsule {
	return api.Capsule{
		ID:         c.ID,
		OwnerID:    c.OwnerID,
		Title:      c.Title,
		Content:    c.Content,
		MediaRef:   c.MediaRef,
		MediaType:  c.MediaType,
		Lat:        c.Location.Lat,
		Lng:        c.Location.Lng,
		Visibility: c.Visibility,
		UnlockAt:   c.UnlockAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		Version:    c.Version,
	}
}

func tokenResponse(p *services.TokenPair) api.TokenResponse {
	return api.TokenResponse{UserID: p.UserID, AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.log.Warn(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in api.Credentials
	if !s.decode(w, r, &in) {
		return
	}
	pair, err := s.users.Register(r.Context(), in.Login, in.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse(pair))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in api.Credentials
	if !s.decode(w, r, &in) {
		return
	}
	pair, err := s.users.Login(r.Context(), in.Login, in.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in api.RefreshRequest
	if !s.decode(w, r, &in) {
		return
	}
	pair, err := s.users.RefreshToken(r.Context(), in.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(pair))
}

func (s *Server) handleCreateCapsule(w http.ResponseWriter, r *http.Request) {
	var in api.CreateCapsuleRequest
	if !s.decode(w, r, &in) {
		return
	}
	c := &models.Capsule{
		ID:         in.ID,
		Title:      in.Title,
		Content:    in.Content,
		MediaRef:   in.MediaRef,
		MediaType:  in.MediaType,
		Location:   geo.Point{Lat: in.Lat, Lng: in.Lng},
		Visibility: in.Visibility,
		UnlockAt:   in.UnlockAt,
		CreatedAt:  in.CreatedAt,
	}
	out, err := s.capsules.Create(r.Context(), userIDFrom(r.Context()), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAPICapsule(out))
}

func (s *Server) handleGetCapsule(w http.ResponseWriter, r *http.Request) {
	c, err := s.capsules.Get(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPICapsule(c))
}

func (s *Server) handleUpdateCapsule(w http.ResponseWriter, r *http.Request) {
	var in api.UpdateCapsuleRequest
	if !s.decode(w, r, &in) {
		return
	}
	out, err := s.capsules.Update(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"), services.CapsuleUpdate{
		BaseVersion: in.BaseVersion,
		Title:       in.Title,
		Content:     in.Content,
		Visibility:  in.Visibility,
		UnlockAt:    in.UnlockAt,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPICapsule(out))
}

func (s *Server) handleDeleteCapsule(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil || version < 1 {
		s.writeError(w, r, fmt.Errorf("%w: version must be a positive integer", common.ErrorValidation))
		return
	}
	if err := s.capsules.Delete(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"), version); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNearby answers GET /api/capsules?near=lat,lng&radius=meters.
func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	center, err := geo.ParsePoint(q.Get("near"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: near: %v", common.ErrorValidation, err))
		return
	}
	radius, err := strconv.ParseFloat(q.Get("radius"), 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: radius: %v", common.ErrorValidation, err))
		return
	}

	found, err := s.capsules.Nearby(r.Context(), userIDFrom(r.Context()), center, radius)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := api.CapsuleList{Capsules: make([]api.Capsule, len(found))}
	for i, c := range found {
		out.Capsules[i] = toAPICapsule(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePresignUpload(w http.ResponseWriter, r *http.Request) {
	var in api.MediaUploadRequest
	if !s.decode(w, r, &in) {
		return
	}
	key, url, err := s.media.PresignUpload(r.Context(), userIDFrom(r.Context()), in.ContentType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.MediaUploadResponse{ObjectKey: key, UploadURL: url})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.events.Serve(w, r, userIDFrom(r.Context()))
}
