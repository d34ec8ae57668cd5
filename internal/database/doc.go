// Package database provides SQLite storage for the subtitle index.
//
// It holds:
//   - Libraries (registered root directories) and the Files found in them
//   - Tracks probed from each file, with subtitle preambles for re-rendering
//   - Conversations and their Lines, produced by subtitle segmentation
//   - An external-content FTS5 table over conversation text, kept in step
//     by triggers
//   - Settings such as the first-run setup marker
//
// Child rows cascade on delete, so removing a library or a file's tracks
// also removes the dependent conversations, lines and full-text entries.
// The database uses WAL mode and requires the driver to be built with the
// sqlite_fts5 tag.
package database
