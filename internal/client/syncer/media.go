package syncer

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/geocapsule/internal/client/client"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/netx"
)

// Uploader moves a note's local media file to remote storage before the
// note itself is created on the backend.
type Uploader interface {
	IsLocal(ref string) bool
	// Upload returns the object key that replaces the local reference.
	Upload(ctx context.Context, n *models.GeoNote) (string, error)
}

const fileScheme = "file://"

// MediaUploader uploads through presigned PUT URLs.
type MediaUploader struct {
	media client.Media
	http  *http.Client
}

func NewMediaUploader(media client.Media, hc *http.Client) *MediaUploader {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &MediaUploader{media: media, http: hc}
}

func (u *MediaUploader) IsLocal(ref string) bool {
	return strings.HasPrefix(ref, fileScheme) || filepath.IsAbs(ref)
}

func (u *MediaUploader) Upload(ctx context.Context, n *models.GeoNote) (string, error) {
	path := strings.TrimPrefix(n.MediaRef, fileScheme)
	ct := contentType(path, n.MediaType)

	target, err := u.media.PresignUpload(ctx, ct)
	if err != nil {
		return "", err
	}
	if err := netx.UploadFileToPresignedURL(ctx, u.http, target.UploadURL, path, ct); err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	return target.ObjectKey, nil
}

func contentType(path string, mt models.MediaType) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	switch mt {
	case models.MediaImage:
		return "image/jpeg"
	case models.MediaVideo:
		return "video/mp4"
	case models.MediaModel3D:
		return "model/gltf-binary"
	}
	return "application/octet-stream"
}
