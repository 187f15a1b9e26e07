package cli

import (
	"bufio"
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	s := ""
	if sess := a.currentSession(); sess != nil {
		s = sess.Login + " "
	}
	if m := a.mode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Root runs the REPL on stdin until the user exits.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to GeoCapsule CLI (type 'help' for commands)")

	if !a.isLoggedIn() {
		if err := a.Login(ctx, nil); err != nil {
			fmt.Fprintln(a.out, "Error:", err)
		}
	}

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}
