// Package notes provides the SQLite-backed repository for GeoNotes.
//
// Timestamps are stored as UTC epoch milliseconds. Every row also has an
// autoincrement seq column that records first-insert order; upserts never
// change it, so dirty notes drain oldest intent first.
//
// Rows whose sync state, visibility, media type or location do not decode
// to valid values are reported as ErrCorruptRecord.
package notes
