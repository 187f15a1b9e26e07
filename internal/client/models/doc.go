// Package models defines the client-side GeoNote record, its sync state
// machine and the conflict records kept when local and remote edits race.
package models
