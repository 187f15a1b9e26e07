package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
)

// Sync runs one pass now and prints what happened.
func (a *App) Sync(ctx context.Context, _ []string) error {
	r, err := a.capsules.Sync(ctx)
	if err != nil {
		return err
	}
	switch {
	case r.Deferred:
		fmt.Fprintln(a.out, "A sync is already running; another pass is queued.")
		return nil
	case r.Paused:
		fmt.Fprintln(a.out, "Sync is paused until you log in again.")
		return nil
	}

	fmt.Fprintf(a.out, "Synced %d, removed %d, failed %d, waiting %d.\n", r.Synced, r.Removed, r.Failed, r.Waiting)
	if r.Overwritten > 0 {
		fmt.Fprintf(a.out, "%d local edits were replaced by newer remote versions.\n", r.Overwritten)
	}
	if len(r.Conflicts) > 0 {
		fmt.Fprintf(a.out, "%d conflicts need a decision, see: conflicts\n", len(r.Conflicts))
	}
	for _, n := range r.Exhausted {
		fmt.Fprintf(a.out, "%s keeps failing (%d attempts): %s\n", n.ID, n.Attempts, n.LastError)
	}

	if at, ok, err := a.capsules.LastSync(ctx); err == nil && ok {
		fmt.Fprintf(a.out, "Last successful sync: %s\n", at.Format(time.RFC3339))
	}
	return nil
}

func (a *App) Conflicts(ctx context.Context, _ []string) error {
	cs, err := a.capsules.Conflicts(ctx)
	if err != nil {
		return err
	}
	if len(cs) == 0 {
		fmt.Fprintln(a.out, "No conflicts.")
		return nil
	}
	for _, c := range cs {
		fmt.Fprintln(a.out, describeConflict(c))
	}
	return nil
}

func describeConflict(c *models.Conflict) string {
	remote := "deleted on the server"
	if c.Remote != nil {
		remote = fmt.Sprintf("server has version %d %q", c.RemoteVersion, c.Remote.Title)
	}
	local := "local delete"
	if c.Kind == models.ConflictUpdate && c.Local != nil {
		local = fmt.Sprintf("local edit %q on version %d", c.Local.Title, c.BaseVersion)
	}
	return fmt.Sprintf("%s  %s vs %s (since %s)", c.NoteID, local, remote, c.DetectedAt.Format(time.RFC3339))
}

// Resolve settles a conflict: resolve <id> keep-local|keep-remote.
func (a *App) Resolve(ctx context.Context, args []string) error {
	id, err := a.argOr(args, 0, "Enter note id")
	if err != nil {
		return err
	}
	choice, err := a.argOr(args, 1, "keep-local or keep-remote")
	if err != nil {
		return err
	}
	res := models.Resolution(choice)
	if !res.Valid() {
		return fmt.Errorf("unknown resolution %q", choice)
	}

	n, err := a.capsules.Resolve(ctx, id, res)
	if err != nil {
		return err
	}
	if n == nil {
		fmt.Fprintf(a.out, "%s removed.\n", id)
		return nil
	}
	fmt.Fprintf(a.out, "%s is now %s.\n", n.ID, n.SyncState)
	return nil
}
