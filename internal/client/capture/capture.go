// Package capture turns a photo (or video, or model) plus a few words into
// a pending GeoNote in the local store.
package capture

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/filex"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
)

// ErrNoLocation is returned when neither the request nor the media file
// carries a position.
var ErrNoLocation = errors.New("no location in request or media metadata")

// Store is the part of the local store capture writes to.
type Store interface {
	Put(ctx context.Context, n *models.GeoNote) (*models.GeoNote, error)
}

// Request describes one capture. Location may be nil when the media file
// has GPS tags.
type Request struct {
	OwnerID    string
	Title      string
	Text       string
	MediaPath  string
	MediaType  models.MediaType
	Location   *geo.Point
	Visibility models.Visibility
	UnlockAt   *time.Time
}

type Service struct {
	store    Store
	clock    clock.Clock
	mediaDir string
	log      logging.Logger

	locate func(path string) (geo.Point, error)
}

// New copies captured media into mediaDir, which must exist.
func New(store Store, clk clock.Clock, mediaDir string, log logging.Logger) *Service {
	return &Service{store: store, clock: clk, mediaDir: mediaDir, log: log, locate: GPSFromFile}
}

// Capture validates req, keeps a private copy of the media file and stores
// the new note as pending-create.
func (s *Service) Capture(ctx context.Context, req Request) (*models.GeoNote, error) {
	if req.MediaPath == "" {
		return nil, &models.ValidationError{Field: "mediaRef", Reason: "is required"}
	}
	if _, err := os.Stat(req.MediaPath); err != nil {
		return nil, &models.ValidationError{Field: "mediaRef", Reason: err.Error()}
	}

	loc, err := s.location(req)
	if err != nil {
		return nil, err
	}

	mt := req.MediaType
	if mt == "" {
		mt = MediaTypeOf(req.MediaPath)
	}

	n, err := models.NewGeoNote(models.CreateInput{
		OwnerID:    req.OwnerID,
		Title:      req.Title,
		Content:    req.Text,
		MediaRef:   req.MediaPath,
		MediaType:  mt,
		Location:   loc,
		Visibility: req.Visibility,
		UnlockAt:   req.UnlockAt,
		Now:        s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	dst, err := filex.CopyFile(req.MediaPath, s.mediaDir, n.ID+strings.ToLower(filepath.Ext(req.MediaPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to keep media: %w", err)
	}
	n.MediaRef = "file://" + dst

	saved, err := s.store.Put(ctx, n)
	if err != nil {
		if rmErr := os.Remove(dst); rmErr != nil {
			s.log.Warn(ctx, "failed to remove orphaned media", "path", dst, "error", rmErr)
		}
		return nil, err
	}

	s.log.Info(ctx, "note captured", "id", saved.ID, "lat", loc.Lat, "lng", loc.Lng)
	return saved, nil
}

func (s *Service) location(req Request) (geo.Point, error) {
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			return geo.Point{}, &models.ValidationError{Field: "location", Reason: err.Error()}
		}
		return *req.Location, nil
	}

	p, err := s.locate(req.MediaPath)
	if err != nil {
		return geo.Point{}, &models.ValidationError{Field: "location", Reason: fmt.Sprintf("%s: %s", ErrNoLocation, err)}
	}
	return p, nil
}

// MediaTypeOf guesses the media type from the file extension. Unknown
// extensions are treated as images.
func MediaTypeOf(path string) models.MediaType {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".glb", ".gltf", ".obj", ".usdz", ".fbx", ".stl":
		return models.MediaModel3D
	case ".mp4", ".mov", ".m4v", ".webm", ".mkv", ".avi", ".3gp":
		return models.MediaVideo
	}
	if strings.HasPrefix(mime.TypeByExtension(ext), "video/") {
		return models.MediaVideo
	}
	return models.MediaImage
}
