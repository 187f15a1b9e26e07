// Package client connects the device to the GeoCapsule backend.
//
// HTTPClient implements the REST contract (Remote, Accounts, Media). It
// injects the bearer access token, refreshes it once when the server
// reports token_expired and maps answers to sentinel errors:
// ErrUnavailable for anything worth retrying later, ErrAuthExpired when the
// user must sign in again, *ConflictError on version conflicts and the
// common package sentinels for the rest.
//
// HealthProber checks the backend's gRPC health endpoint.
//
// InitDatabase and RunMigrations bootstrap the local SQLite database.
package client
