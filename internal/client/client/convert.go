package client

import (
	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

// ToNote converts a wire capsule into a synced client note.
func ToNote(c *api.Capsule) *models.GeoNote {
	n := &models.GeoNote{
		ID:         c.ID,
		OwnerID:    c.OwnerID,
		Title:      c.Title,
		Content:    c.Content,
		MediaRef:   c.MediaRef,
		MediaType:  models.MediaType(c.MediaType),
		Location:   geo.Point{Lat: c.Lat, Lng: c.Lng},
		Visibility: models.Visibility(c.Visibility),
		CreatedAt:  models.Timestamp(c.CreatedAt),
		UpdatedAt:  models.Timestamp(c.UpdatedAt),
		SyncState:  models.StateSynced,
		Version:    c.Version,
	}
	if c.UnlockAt != nil {
		t := models.Timestamp(*c.UnlockAt)
		n.UnlockAt = &t
	}
	return n
}

// CreateRequestFromNote builds the create body for a pending note.
func CreateRequestFromNote(n *models.GeoNote) api.CreateCapsuleRequest {
	return api.CreateCapsuleRequest{
		ID:         n.ID,
		Title:      n.Title,
		Content:    n.Content,
		MediaRef:   n.MediaRef,
		MediaType:  string(n.MediaType),
		Lat:        n.Location.Lat,
		Lng:        n.Location.Lng,
		Visibility: string(n.Visibility),
		UnlockAt:   n.UnlockAt,
		CreatedAt:  n.CreatedAt,
	}
}

// UpdateRequestFromNote builds the update body; BaseVersion is the last
// version the client saw confirmed.
func UpdateRequestFromNote(n *models.GeoNote) api.UpdateCapsuleRequest {
	return api.UpdateCapsuleRequest{
		BaseVersion: n.Version,
		Title:       n.Title,
		Content:     n.Content,
		Visibility:  string(n.Visibility),
		UnlockAt:    n.UnlockAt,
	}
}
