// Package transcoder runs ffprobe and ffmpeg.
//
// It supports:
//   - Listing the streams of a media file (Probe)
//   - Converting a subtitle stream to ASS text (ExtractSubtitle)
//   - Running arbitrary jobs built from inputs with seek and duration, a
//     filter graph, stream maps and encoder options (Run, Output)
//
// Every process is tracked so Cleanup can stop them on shutdown, and each
// run is recorded in the ffmpeg metrics by job kind. Both binaries must be
// installed, either on PATH or at the configured locations.
package transcoder
