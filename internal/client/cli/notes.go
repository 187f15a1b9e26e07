package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/capture"
	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
)

var errNotLoggedIn = errors.New("not logged in")

func (a *App) viewer() (string, error) {
	s := a.currentSession()
	if s == nil {
		return "", errNotLoggedIn
	}
	return s.UserID, nil
}

// Capture creates a note from a media file. The location prompt accepts
// "lat,lng", "here" for the last reported position, or nothing to read
// GPS tags from the file.
func (a *App) Capture(ctx context.Context, args []string) error {
	owner, err := a.viewer()
	if err != nil {
		return err
	}

	path, err := a.argOr(args, 0, "Media file")
	if err != nil {
		return err
	}
	title, err := a.ask("Title (optional)")
	if err != nil {
		return err
	}
	text, err := getMultiline(a.reader, "Text", a.out)
	if err != nil {
		return err
	}
	where, err := a.ask("Location: lat,lng | here | empty to read it from the file")
	if err != nil {
		return err
	}
	loc, err := a.resolveLocation(where)
	if err != nil {
		return err
	}
	vis, err := a.ask("Visibility: private | public (default private)")
	if err != nil {
		return err
	}
	visibility, err := parseVisibility(vis)
	if err != nil {
		return err
	}
	unlock, err := a.ask("Unlock at: RFC 3339 time | duration like 72h | empty for none")
	if err != nil {
		return err
	}
	unlockAt, err := parseUnlock(unlock, a.clock.Now())
	if err != nil {
		return err
	}

	n, err := a.capsules.Capture(ctx, capture.Request{
		OwnerID:    owner,
		Title:      title,
		Text:       text,
		MediaPath:  path,
		Location:   loc,
		Visibility: visibility,
		UnlockAt:   unlockAt,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Captured %s at %s\n", n.ID, n.Location)
	return nil
}

func (a *App) resolveLocation(s string) (*geo.Point, error) {
	switch strings.ToLower(s) {
	case "":
		return nil, nil
	case "here":
		p, ok := a.positions.current()
		if !ok {
			return nil, errors.New("no position reported yet, use: here <lat,lng>")
		}
		return &p, nil
	}
	p, err := geo.ParsePoint(s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Edit changes the user-editable fields of a note. Empty answers keep the
// current value; "-" clears the unlock time.
func (a *App) Edit(ctx context.Context, args []string) error {
	id, err := a.argOr(args, 0, "Enter note id to edit")
	if err != nil {
		return err
	}
	cur, err := a.capsules.Get(ctx, id)
	if err != nil {
		return err
	}

	var p models.NotePatch

	title, err := a.ask(fmt.Sprintf("Title [%s]", cur.Title))
	if err != nil {
		return err
	}
	if title != "" {
		p.Title = &title
	}

	text, err := getMultiline(a.reader, "Text (empty keeps the current text)", a.out)
	if err != nil {
		return err
	}
	if text != "" {
		p.Content = &text
	}

	vis, err := a.ask(fmt.Sprintf("Visibility [%s]", cur.Visibility))
	if err != nil {
		return err
	}
	if vis != "" {
		v, err := parseVisibility(vis)
		if err != nil {
			return err
		}
		p.Visibility = &v
	}

	unlock, err := a.ask(fmt.Sprintf("Unlock at [%s] (- to clear)", formatUnlock(cur.UnlockAt)))
	if err != nil {
		return err
	}
	switch unlock {
	case "":
	case "-":
		p.ClearUnlockAt = true
	default:
		if p.UnlockAt, err = parseUnlock(unlock, a.clock.Now()); err != nil {
			return err
		}
	}

	n, err := a.capsules.Update(ctx, id, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s (%s)\n", n.ID, n.SyncState)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := a.argOr(args, 0, "Enter note id to delete")
	if err != nil {
		return err
	}
	return a.capsules.Delete(ctx, id)
}

// List prints every note in the local store, including those waiting to
// sync.
func (a *App) List(ctx context.Context, _ []string) error {
	notes, err := a.capsules.List(ctx)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Fprintln(a.out, "No notes yet.")
		return nil
	}
	now := a.clock.Now()
	for _, n := range notes {
		fmt.Fprintln(a.out, summary(n, now))
	}
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	id, err := a.argOr(args, 0, "Enter note id to show")
	if err != nil {
		return err
	}
	n, err := a.capsules.Get(ctx, id)
	if err != nil {
		return err
	}
	viewer, _ := a.viewer()
	printNote(a.out, n, viewer, a.clock.Now())
	return nil
}

func summary(n *models.GeoNote, now time.Time) string {
	title := n.Title
	if title == "" {
		title = "(untitled)"
	}
	lock := ""
	if n.Locked(now) {
		lock = " [sealed]"
	}
	return fmt.Sprintf("%s  %-14s %-7s %s  %s%s", n.ID, n.SyncState, n.Visibility, n.Location, title, lock)
}

// printNote hides the content of sealed notes from anyone but the owner.
func printNote(w io.Writer, n *models.GeoNote, viewer string, now time.Time) {
	fmt.Fprintf(w, "ID:         %s\n", n.ID)
	fmt.Fprintf(w, "Title:      %s\n", n.Title)
	fmt.Fprintf(w, "Location:   %s\n", n.Location)
	fmt.Fprintf(w, "Visibility: %s\n", n.Visibility)
	fmt.Fprintf(w, "Media:      %s (%s)\n", n.MediaRef, n.MediaType)
	fmt.Fprintf(w, "Unlock at:  %s\n", formatUnlock(n.UnlockAt))
	fmt.Fprintf(w, "Updated:    %s\n", n.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Sync:       %s (version %d)\n", n.SyncState, n.Version)
	if n.LastError != "" {
		fmt.Fprintf(w, "Last error: %s (attempt %d)\n", n.LastError, n.Attempts)
	}
	if n.Locked(now) && n.OwnerID != viewer {
		fmt.Fprintln(w, "Sealed until the unlock time.")
		return
	}
	fmt.Fprintf(w, "\n%s\n", n.Content)
}

func formatUnlock(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format(time.RFC3339)
}
