package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// command is the shape of every REPL handler: args are the words after
// the command name.
type command func(ctx context.Context, args []string) error

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context, args []string) error
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
	Capture(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Here(ctx context.Context, args []string) error
	Walk(ctx context.Context, args []string) error
	Nearby(ctx context.Context, args []string) error
	Around(ctx context.Context, args []string) error
	Pull(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Conflicts(ctx context.Context, args []string) error
	Resolve(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: register, login, here, exit"
	helpLoggedIn  = "Available commands: capture, edit, delete, (l)ist, show, here, walk, nearby, around, pull, sync, conflicts, resolve, logout, exit"
)

// runREPL starts a simple read–eval–print loop for the GeoCapsule CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command and the rest as its arguments, and dispatches to methods on 'a'.
// The loop exits on scanner EOF or when the user types "exit" or "quit".
//
// Prompt & Commands
//
//	Not logged in:
//	  - help                          show available commands
//	  - register | login              create an account / authenticate
//	  - here [lat,lng]                report or show the device position
//	  - exit | quit                   leave the program
//
//	Logged in, additionally:
//	  - capture [file]                create a note from a media file
//	  - edit <id> | delete <id>       change or remove a note
//	  - list | show <id>              local notes
//	  - walk <track file>             replay positions from a file
//	  - nearby [lat,lng] [radius_m]   notes around a point
//	  - around                        notes around the device, kept current
//	  - pull [lat,lng] [radius_m]     fetch notes around a point from the server
//	  - sync                          run a sync pass now
//	  - conflicts                     list unresolved conflicts
//	  - resolve <id> keep-local|keep-remote
//	  - logout
//
// Errors returned by handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	open := map[string]command{
		"register": a.Register,
		"login":    a.Login,
		"here":     a.Here,
	}
	private := map[string]command{
		"capture":   a.Capture,
		"add":       a.Capture,
		"edit":      a.Edit,
		"delete":    a.Delete,
		"l":         a.List,
		"list":      a.List,
		"show":      a.Show,
		"walk":      a.Walk,
		"nearby":    a.Nearby,
		"around":    a.Around,
		"pull":      a.Pull,
		"sync":      a.Sync,
		"conflicts": a.Conflicts,
		"resolve":   a.Resolve,
		"logout":    a.Logout,
	}

	for {
		printlnFn(fmt.Sprintf("gc> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
			continue

		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		run, ok := open[cmd]
		if !ok {
			run, ok = private[cmd]
			if ok && !a.isLoggedIn() {
				printlnFn("Please login first.")
				continue
			}
		}
		if !ok {
			printlnFn("Unknown command:", cmd)
			continue
		}
		if err := run(ctx, args); err != nil {
			printlnFn("Error:", err)
		}
	}
}
