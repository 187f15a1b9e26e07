package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"github.com/dmitrijs2005/geocapsule/internal/server/models"
	"github.com/dmitrijs2005/geocapsule/internal/server/notify"
	"github.com/dmitrijs2005/geocapsule/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/geocapsule/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	maxContentLen = 10000
	maxTitleLen   = 200
)

var mediaTypes = map[string]bool{"image": true, "video": true, "3d-model": true}

// ConflictError is returned when a write names a stale version. Current
// is the stored capsule, nil when it is gone.
type ConflictError struct {
	Current *models.Capsule
}

func (e *ConflictError) Error() string { return "version conflict" }

func (e *ConflictError) Unwrap() error { return common.ErrVersionConflict }

// CapsuleUpdate holds the fields a client may change.
type CapsuleUpdate struct {
	BaseVersion int64
	Title       string
	Content     string
	Visibility  string
	UnlockAt    *time.Time
}

// CapsuleService owns capsule writes and reads. Every accepted write is
// announced on the publisher; a failed announcement is logged, not
// returned, since clients reconcile on their next pass anyway.
type CapsuleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	events      notify.Publisher
	clock       clock.Clock
	log         logging.Logger
}

func NewCapsuleService(db *sql.DB, m repomanager.RepositoryManager, events notify.Publisher, clk clock.Clock, log logging.Logger) *CapsuleService {
	return &CapsuleService{
		db:          db,
		repomanager: m,
		events:      events,
		clock:       clk,
		log:         log.With("module", "capsule_service"),
	}
}

func validationError(field, reason string) error {
	return fmt.Errorf("%w: %s %s", common.ErrorValidation, field, reason)
}

func validateMutable(title, content, visibility string) error {
	if strings.TrimSpace(content) == "" {
		return validationError("content", "must not be empty")
	}
	if utf8.RuneCountInString(content) > maxContentLen {
		return validationError("content", "too long")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return validationError("title", "too long")
	}
	if visibility != models.VisibilityPrivate && visibility != models.VisibilityPublic {
		return validationError("visibility", "unknown value "+visibility)
	}
	return nil
}

func validateNew(c *models.Capsule) error {
	if strings.TrimSpace(c.ID) == "" {
		return validationError("id", "is required")
	}
	if strings.TrimSpace(c.MediaRef) == "" {
		return validationError("media_ref", "is required")
	}
	if !mediaTypes[c.MediaType] {
		return validationError("media_type", "unknown value "+c.MediaType)
	}
	if err := c.Location.Validate(); err != nil {
		return validationError("location", err.Error())
	}
	return validateMutable(c.Title, c.Content, c.Visibility)
}

// Create stores a new capsule owned by ownerID. The id is chosen by the
// client, so a retried create reports common.ErrorAlreadyExists.
func (s *CapsuleService) Create(ctx context.Context, ownerID string, c *models.Capsule) (_ *models.Capsule, err error) {
	ctx, span := telemetry.StartSpan(ctx, "capsules.create", attribute.String("capsule.id", c.ID))
	defer func() { telemetry.End(span, err) }()

	c.OwnerID = ownerID
	if err := validateNew(c); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	if c.CreatedAt.IsZero() || c.CreatedAt.After(now) {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	out, err := s.repomanager.Capsules(s.db).Create(ctx, c)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, out, api.ChangeCreated, out.Visibility)
	return out, nil
}

// Get returns a capsule viewerID may read. Capsules they may not read look
// missing; deleted ones are common.ErrorGone.
func (s *CapsuleService) Get(ctx context.Context, viewerID, id string) (*models.Capsule, error) {
	c, err := s.repomanager.Capsules(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.VisibleTo(viewerID, s.clock.Now()) {
		return nil, common.ErrorNotFound
	}
	if c.DeletedAt != nil {
		return nil, common.ErrorGone
	}
	return c, nil
}

// owned loads id for a write by userID.
func (s *CapsuleService) owned(ctx context.Context, userID, id string) (*models.Capsule, error) {
	c, err := s.repomanager.Capsules(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != userID {
		if c.VisibleTo(userID, s.clock.Now()) {
			return nil, common.ErrorForbidden
		}
		return nil, common.ErrorNotFound
	}
	if c.DeletedAt != nil {
		return nil, common.ErrorGone
	}
	return c, nil
}

// conflict re-reads id after a lost version race.
func (s *CapsuleService) conflict(ctx context.Context, id string) error {
	current, err := s.repomanager.Capsules(s.db).Get(ctx, id)
	if err != nil {
		return err
	}
	if current.DeletedAt != nil {
		return common.ErrorGone
	}
	return &ConflictError{Current: current}
}

// Update applies u if u.BaseVersion is still the stored version. A stale
// base version returns *ConflictError with the stored capsule.
func (s *CapsuleService) Update(ctx context.Context, userID, id string, u CapsuleUpdate) (_ *models.Capsule, err error) {
	ctx, span := telemetry.StartSpan(ctx, "capsules.update",
		attribute.String("capsule.id", id), attribute.Int64("capsule.base_version", u.BaseVersion))
	defer func() { telemetry.End(span, err) }()

	if err := validateMutable(u.Title, u.Content, u.Visibility); err != nil {
		return nil, err
	}
	cur, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if cur.Version != u.BaseVersion {
		return nil, &ConflictError{Current: cur}
	}

	next := *cur
	next.Title = u.Title
	next.Content = u.Content
	next.Visibility = u.Visibility
	next.UnlockAt = u.UnlockAt
	next.UpdatedAt = s.clock.Now().UTC()

	out, err := s.repomanager.Capsules(s.db).Update(ctx, &next, u.BaseVersion)
	if errors.Is(err, common.ErrVersionConflict) {
		return nil, s.conflict(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	// Viewers who could see the old version hear about it going private.
	vis := out.Visibility
	if cur.Visibility == models.VisibilityPublic {
		vis = models.VisibilityPublic
	}
	s.publish(ctx, out, api.ChangeUpdated, vis)
	return out, nil
}

// Delete soft-deletes id if version is still the stored version.
func (s *CapsuleService) Delete(ctx context.Context, userID, id string, version int64) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "capsules.delete",
		attribute.String("capsule.id", id), attribute.Int64("capsule.version", version))
	defer func() { telemetry.End(span, err) }()

	cur, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if cur.Version != version {
		return &ConflictError{Current: cur}
	}

	out, err := s.repomanager.Capsules(s.db).SoftDelete(ctx, id, version, s.clock.Now())
	if errors.Is(err, common.ErrVersionConflict) {
		return s.conflict(ctx, id)
	}
	if err != nil {
		return err
	}
	s.publish(ctx, out, api.ChangeDeleted, cur.Visibility)
	return nil
}

// Nearby lists capsules within radius meters of center that viewerID may
// read, nearest first. Ties break on id.
func (s *CapsuleService) Nearby(ctx context.Context, viewerID string, center geo.Point, radius float64) (_ []*models.Capsule, err error) {
	ctx, span := telemetry.StartSpan(ctx, "capsules.nearby", attribute.Float64("radius_m", radius))
	defer func() { telemetry.End(span, err) }()

	if err := center.Validate(); err != nil {
		return nil, validationError("near", err.Error())
	}
	if err := geo.ValidateRadius(radius); err != nil {
		return nil, validationError("radius", err.Error())
	}

	now := s.clock.Now()
	candidates, err := s.repomanager.Capsules(s.db).InBox(ctx, geo.BoundingBox(center, radius), viewerID, now)
	if err != nil {
		return nil, err
	}

	type hit struct {
		c *models.Capsule
		d float64
	}
	hits := make([]hit, 0, len(candidates))
	for _, c := range candidates {
		if c.DeletedAt != nil || !c.VisibleTo(viewerID, now) {
			continue
		}
		if d := geo.Distance(center, c.Location); d <= radius {
			hits = append(hits, hit{c, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].d != hits[j].d {
			return hits[i].d < hits[j].d
		}
		return hits[i].c.ID < hits[j].c.ID
	})

	out := make([]*models.Capsule, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out, nil
}

func (s *CapsuleService) publish(ctx context.Context, c *models.Capsule, kind, visibility string) {
	if s.events == nil {
		return
	}
	ev := api.ChangeEvent{
		CapsuleID:  c.ID,
		OwnerID:    c.OwnerID,
		Visibility: visibility,
		Kind:       kind,
		Version:    c.Version,
		At:         c.UpdatedAt,
		UnlockAt:   c.UnlockAt,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn(ctx, "publish change event failed", "capsule_id", c.ID, "kind", kind, "error", err)
	}
}
