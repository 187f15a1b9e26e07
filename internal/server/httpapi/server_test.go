package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"github.com/dmitrijs2005/geocapsule/internal/server/models"
	"github.com/dmitrijs2005/geocapsule/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

type fakeUsers struct {
	UserService
	registerErr error
	tokens      map[string]string
	tokenErr    error
}

func (f *fakeUsers) Register(_ context.Context, login, _ string) (*services.TokenPair, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &services.TokenPair{UserID: "user-" + login, AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeUsers) Login(_ context.Context, login, password string) (*services.TokenPair, error) {
	if password != "correct horse" {
		return nil, common.ErrorInvalidLoginPassword
	}
	return &services.TokenPair{UserID: "user-" + login, AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeUsers) RefreshToken(_ context.Context, token string) (*services.TokenPair, error) {
	if token != "refresh" {
		return nil, common.ErrRefreshTokenExpired
	}
	return &services.TokenPair{UserID: "u1", AccessToken: "access2", RefreshToken: "refresh2"}, nil
}

func (f *fakeUsers) UserIDFromAccessToken(token string) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	id, ok := f.tokens[token]
	if !ok {
		return "", common.ErrInvalidToken
	}
	return id, nil
}

type fakeCapsules struct {
	CapsuleService
	created   *models.Capsule
	createdBy string
	getErr    error
	updateErr error
	update    services.CapsuleUpdate
	deleted   int64
	center    geo.Point
	radius    float64
	nearby    []*models.Capsule
}

func (f *fakeCapsules) Create(_ context.Context, ownerID string, c *models.Capsule) (*models.Capsule, error) {
	f.createdBy = ownerID
	f.created = c
	out := *c
	out.OwnerID = ownerID
	out.Version = 1
	out.UpdatedAt = t0
	return &out, nil
}

func (f *fakeCapsules) Get(_ context.Context, _ string, id string) (*models.Capsule, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &models.Capsule{ID: id, OwnerID: "u1", Visibility: models.VisibilityPrivate, Version: 3}, nil
}

func (f *fakeCapsules) Update(_ context.Context, _ string, id string, u services.CapsuleUpdate) (*models.Capsule, error) {
	f.update = u
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &models.Capsule{ID: id, OwnerID: "u1", Title: u.Title, Version: u.BaseVersion + 1}, nil
}

func (f *fakeCapsules) Delete(_ context.Context, _ string, _ string, version int64) error {
	f.deleted = version
	return nil
}

func (f *fakeCapsules) Nearby(_ context.Context, _ string, center geo.Point, radius float64) ([]*models.Capsule, error) {
	f.center = center
	f.radius = radius
	return f.nearby, nil
}

type fakeMedia struct {
	MediaService
}

func (fakeMedia) PresignUpload(_ context.Context, userID, contentType string) (string, string, error) {
	if contentType == "text/html" {
		return "", "", common.ErrorValidation
	}
	return "users/" + userID + "/x", "http://s3/put", nil
}

type fakeEvents struct {
	user string
}

func (f *fakeEvents) Serve(w http.ResponseWriter, _ *http.Request, userID string) {
	f.user = userID
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type fixture struct {
	users    *fakeUsers
	capsules *fakeCapsules
	events   *fakeEvents
	health   error
	handler  http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		users:    &fakeUsers{tokens: map[string]string{"good": "u1"}},
		capsules: &fakeCapsules{},
		events:   &fakeEvents{},
	}
	s := NewServer(f.users, f.capsules, fakeMedia{}, f.events,
		func(context.Context) error { return f.health }, logging.NewDiscard())
	f.handler = s.Router()
	return f
}

func (f *fixture) do(method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.Error {
	t.Helper()
	var e api.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestHealth(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, api.PathHealth, "", "").Code)

	f.health = errors.New("db down")
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, api.PathHealth, "", "").Code)
}

func TestAuthEndpoints(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, api.PathRegister, "", `{"login":"ann","password":"correct horse"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var tr api.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, "user-ann", tr.UserID)

	rec = f.do(http.MethodPost, api.PathLogin, "", `{"login":"ann","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, common.CodeForError(common.ErrorInvalidLoginPassword), decodeError(t, rec).Code)

	rec = f.do(http.MethodPost, api.PathRefresh, "", `{"refresh_token":"stale"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, common.CodeRefreshTokenExpired, decodeError(t, rec).Code)

	rec = f.do(http.MethodPost, api.PathRefresh, "", `{"refresh_token":"refresh"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	f.users.registerErr = common.ErrorLoginAlreadyExists
	rec = f.do(http.MethodPost, api.PathRegister, "", `{"login":"ann","password":"correct horse"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBadBody(t *testing.T) {
	f := newFixture()
	for _, body := range []string{"", "{", `{"login":"a","extra":1}`} {
		rec := f.do(http.MethodPost, api.PathLogin, "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, common.CodeValidation, decodeError(t, rec).Code)
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, api.PathCapsules+"/c1", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, common.CodeUnauthorized, decodeError(t, rec).Code)

	rec = f.do(http.MethodGet, api.PathCapsules+"/c1", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, common.CodeUnauthorized, decodeError(t, rec).Code)

	f.users.tokenErr = common.ErrTokenExpired
	rec = f.do(http.MethodGet, api.PathCapsules+"/c1", "good", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, common.CodeTokenExpired, decodeError(t, rec).Code)
}

func TestCreateCapsule(t *testing.T) {
	f := newFixture()
	body := `{"id":"c1","content":"hi","media_ref":"users/u1/a","media_type":"image","lat":13.08,"lng":80.27,"visibility":"public","created_at":"2026-10-01T07:00:00Z"}`

	rec := f.do(http.MethodPost, api.PathCapsules, "good", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, "u1", f.capsules.createdBy)
	assert.Equal(t, geo.Point{Lat: 13.08, Lng: 80.27}, f.capsules.created.Location)
	assert.Equal(t, t0.Add(-time.Hour), f.capsules.created.CreatedAt)

	var got api.Capsule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, "u1", got.OwnerID)
	assert.EqualValues(t, 1, got.Version)
}

func TestGetCapsuleErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.ErrorNotFound, http.StatusNotFound},
		{common.ErrorGone, http.StatusGone},
		{common.ErrorForbidden, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f := newFixture()
			f.capsules.getErr = tt.err
			rec := f.do(http.MethodGet, api.PathCapsules+"/c1", "good", "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	f := newFixture()
	f.capsules.getErr = errors.New("connection refused to 10.0.0.5")
	rec := f.do(http.MethodGet, api.PathCapsules+"/c1", "good", "")
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestUpdateCapsule(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPatch, api.PathCapsules+"/c1", "good", `{"base_version":2,"title":"new","content":"x","visibility":"private"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.CapsuleUpdate{BaseVersion: 2, Title: "new", Content: "x", Visibility: "private"}, f.capsules.update)

	var got api.Capsule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 3, got.Version)
}

func TestUpdateCapsule_ConflictCarriesCurrent(t *testing.T) {
	f := newFixture()
	f.capsules.updateErr = &services.ConflictError{Current: &models.Capsule{ID: "c1", OwnerID: "u1", Title: "theirs", Version: 5}}

	rec := f.do(http.MethodPatch, api.PathCapsules+"/c1", "good", `{"base_version":2,"content":"x","visibility":"private"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	e := decodeError(t, rec)
	assert.Equal(t, common.CodeVersionConflict, e.Code)
	require.NotNil(t, e.Current)
	assert.Equal(t, "theirs", e.Current.Title)
	assert.EqualValues(t, 5, e.Current.Version)
}

func TestDeleteCapsule(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodDelete, api.PathCapsules+"/c1?version=4", "good", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.EqualValues(t, 4, f.capsules.deleted)

	for _, q := range []string{"", "?version=0", "?version=x"} {
		rec = f.do(http.MethodDelete, api.PathCapsules+"/c1"+q, "good", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestNearby(t *testing.T) {
	f := newFixture()
	f.capsules.nearby = []*models.Capsule{
		{ID: "a", OwnerID: "u1", Location: geo.Point{Lat: 13.08, Lng: 80.27}},
		{ID: "b", OwnerID: "u2", Location: geo.Point{Lat: 13.09, Lng: 80.27}},
	}

	rec := f.do(http.MethodGet, api.PathCapsules+"?near=13.08,80.27&radius=500", "good", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, geo.Point{Lat: 13.08, Lng: 80.27}, f.capsules.center)
	assert.Equal(t, 500.0, f.capsules.radius)

	var list api.CapsuleList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Capsules, 2)
	assert.Equal(t, "a", list.Capsules[0].ID)
	assert.Equal(t, 13.09, list.Capsules[1].Lat)

	for _, q := range []string{"", "?near=13.08,80.27", "?near=95,0&radius=10", "?near=x&radius=10", "?near=1,2&radius=far"} {
		rec = f.do(http.MethodGet, api.PathCapsules+q, "good", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestNearby_EmptyListIsArray(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, api.PathCapsules+"?near=0,0&radius=10", "good", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"capsules":[]}`, rec.Body.String())
}

func TestPresignUpload(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, api.PathMediaUploads, "good", `{"content_type":"image/jpeg"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got api.MediaUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, api.MediaUploadResponse{ObjectKey: "users/u1/x", UploadURL: "http://s3/put"}, got)

	rec = f.do(http.MethodPost, api.PathMediaUploads, "good", `{"content_type":"text/html"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsRequireAuth(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, api.PathEvents, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.events.user)

	rec = f.do(http.MethodGet, api.PathEvents, "good", "")
	assert.Equal(t, http.StatusSwitchingProtocols, rec.Code)
	assert.Equal(t, "u1", f.events.user)
}
