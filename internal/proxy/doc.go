// Package proxy gives external tools short paths to media files.
//
// Some source paths are longer than ffmpeg can open. When a symlink
// directory is configured, Acquire creates a uniquely named link there
// pointing at the real file and hands out the link path instead. Links are
// removed by Release. When symlinks cannot be created (for example without
// the privilege on Windows) the original path is used unchanged.
package proxy
