// Package store is the durable, device-local home of every GeoNote.
//
// All writes go through Store so that sync states only move along the state
// machine in models, per-note writes are serialized, and registered
// listeners (the query index) see every committed change. Reads never wait
// on writes to other notes.
package store
