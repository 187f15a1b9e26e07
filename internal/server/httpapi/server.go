// Package httpapi exposes the capsule backend over REST and a websocket
// change stream.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"github.com/dmitrijs2005/geocapsule/internal/server/models"
	"github.com/dmitrijs2005/geocapsule/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type UserService interface {
	Register(ctx context.Context, login, password string) (*services.TokenPair, error)
	Login(ctx context.Context, login, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	UserIDFromAccessToken(token string) (string, error)
}

type CapsuleService interface {
	Create(ctx context.Context, ownerID string, c *models.Capsule) (*models.Capsule, error)
	Get(ctx context.Context, viewerID, id string) (*models.Capsule, error)
	Update(ctx context.Context, userID, id string, u services.CapsuleUpdate) (*models.Capsule, error)
	Delete(ctx context.Context, userID, id string, version int64) error
	Nearby(ctx context.Context, viewerID string, center geo.Point, radius float64) ([]*models.Capsule, error)
}

type MediaService interface {
	PresignUpload(ctx context.Context, userID, contentType string) (key string, url string, err error)
}

// EventStream serves the websocket change stream for an authenticated
// user.
type EventStream interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string)
}

// HealthCheck reports whether the backend's dependencies are reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	users    UserService
	capsules CapsuleService
	media    MediaService
	events   EventStream
	health   HealthCheck
	log      logging.Logger
}

func NewServer(users UserService, capsules CapsuleService, media MediaService, events EventStream, health HealthCheck, log logging.Logger) *Server {
	return &Server{
		users:    users,
		capsules: capsules,
		media:    media,
		events:   events,
		health:   health,
		log:      log.With("module", "http_api"),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get(api.PathHealth, s.handleHealth)
	r.Post(api.PathRegister, s.handleRegister)
	r.Post(api.PathLogin, s.handleLogin)
	r.Post(api.PathRefresh, s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route(api.PathCapsules, func(r chi.Router) {
			r.Post("/", s.handleCreateCapsule)
			r.Get("/", s.handleNearby)
			r.Get("/{id}", s.handleGetCapsule)
			r.Patch("/{id}", s.handleUpdateCapsule)
			r.Delete("/{id}", s.handleDeleteCapsule)
		})
		r.Post(api.PathMediaUploads, s.handlePresignUpload)
		r.Get(api.PathEvents, s.handleEvents)
	})

	return r
}

// NewHTTPServer wraps handler with the timeouts used in production. There
// is no write timeout because the events websocket is long lived.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
