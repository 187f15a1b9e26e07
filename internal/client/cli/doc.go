// Package cli provides the interactive GeoCapsule command-line client.
//
// It wires configuration, the local store, the spatial index, the sync
// engine and the backend clients behind an interactive REPL that keeps
// working offline. Typical flow: restore or prompt for a session, start
// the sync loop, the connectivity watcher and the change-event
// subscription, then execute user commands.
//
// Key features:
//   - Login / Logout (online with offline fallback)
//   - Capture notes from media files, edit and delete them
//   - Nearby and "around me" queries answered from local state
//   - Sync with the server and resolve conflicts
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
