// Package thumbnail captures a frame from a video track with ffmpeg, scales
// it with imaging and caches the JPEG on disk. Cache entries are keyed by
// the source path, stream and file version.
package thumbnail
