// Package render burns selected subtitle dialogue onto a window of a video
// track and writes the result as a clip or still frame.
//
// Output files are named by a digest of the request, so identical requests
// share one artifact. A bbolt ledger records when each artifact was last
// served and a sweeper deletes artifacts that outlive the cache TTL.
package render
