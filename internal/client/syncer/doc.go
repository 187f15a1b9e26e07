// Package syncer reconciles locally queued intents with the backend.
//
// Each pass walks the store's dirty notes oldest first. Creates carry the
// client id so a retried create is idempotent; updates and deletes carry
// the last confirmed version and turn into conflicts when the backend has
// moved on. Transient failures are retried with capped exponential
// backoff, and an expired credential pauses the engine until Resume.
package syncer
