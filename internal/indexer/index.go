package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"subtitle-index/internal/database"
	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
	"subtitle-index/internal/subtitle"
	"subtitle-index/internal/transcoder"
)

// errSearchIndex marks a failure to hand stored conversations to the search
// sink. The file stays pending so the next cycle replaces them.
var errSearchIndex = errors.New("search index update failed")

// IndexFiles extracts tracks from every pending file of every reachable
// library. Files are processed one at a time; a failing file is logged and
// left pending for the next cycle.
func (idx *Indexer) IndexFiles(ctx context.Context) error {
	libs, err := idx.db.ListLibraries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list libraries: %w", err)
	}

	type pendingLib struct {
		lib   database.Library
		files []database.File
	}
	var work []pendingLib
	var total int64
	for _, lib := range libs {
		if !lib.StillExists {
			continue
		}
		files, err := idx.db.ListPendingFiles(ctx, lib.ID)
		if err != nil {
			logging.Error("Failed to list pending files of %s: %v", lib.Path, err)
			continue
		}
		if len(files) > 0 {
			work = append(work, pendingLib{lib: lib, files: files})
			total += int64(len(files))
		}
	}

	metrics.IndexerPending.Set(float64(total))
	idx.updateProgress(func(p *Progress) { p.FilesPending = total })

	for _, w := range work {
		for _, file := range w.files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if idx.opts.Memory != nil {
				if err := idx.opts.Memory.WaitIfPaused(ctx); err != nil {
					return err
				}
			}

			if err := idx.IndexFile(ctx, w.lib, file); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				metrics.IndexerFilesTotal.WithLabelValues("error").Inc()
				logging.Error("Failed to index %s/%s: %v", w.lib.Path, file.Path, err)
			} else {
				metrics.IndexerFilesTotal.WithLabelValues("success").Inc()
			}

			total--
			metrics.IndexerPending.Set(float64(total))
			idx.updateProgress(func(p *Progress) {
				p.FilesPending = total
				p.FilesIndexed++
			})
		}
	}
	return nil
}

// IndexFile replaces the tracks of one file with what the prober currently
// reports and marks it indexed. A probe failure is logged and the file is
// indexed with no tracks; so is a failure to extract one subtitle track.
// Errors returned are storage or search index errors, which leave the file
// pending.
func (idx *Indexer) IndexFile(ctx context.Context, lib database.Library, file database.File) error {
	log := logging.With("library", lib.Path).With("file", file.Path)

	if err := idx.clearTracks(ctx, file.ID); err != nil {
		return err
	}

	fullPath := filepath.Join(idx.LibraryRoot(lib), filepath.FromSlash(file.Path))
	link := idx.proxy.Acquire(fullPath)
	defer func() {
		if err := link.Release(); err != nil {
			log.Warn("%v", err)
		}
	}()

	streams, err := idx.prober.Probe(ctx, link.Path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Probe failed, indexing without tracks: %v", err)
		metrics.IndexerSubtitleErrors.WithLabelValues("probe").Inc()
		streams = nil
	}

	for _, stream := range streams {
		trackType, ok := classifyStream(stream.CodecType)
		if !ok {
			continue
		}

		track := database.Track{
			FileID:      file.ID,
			TrackNumber: stream.Index,
			Type:        trackType,
			Language:    optional(stream.Tags.Language),
			Title:       optional(stream.Tags.Title),
		}
		track.ID, err = idx.db.InsertTrack(ctx, track)
		if err != nil {
			return fmt.Errorf("failed to insert track %d: %w", stream.Index, err)
		}
		metrics.IndexerTracksTotal.WithLabelValues(string(trackType)).Inc()

		if trackType != database.TrackTypeSubtitle || !idx.opts.ExtractSubtitles {
			continue
		}
		if err := idx.indexTrack(ctx, link.Path, track); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, errSearchIndex) {
				return fmt.Errorf("subtitle track %d: %w", stream.Index, err)
			}
			log.Warn("Subtitle track %d skipped: %v", stream.Index, err)
		}
	}

	if err := idx.db.MarkFileIndexed(ctx, file.ID); err != nil {
		return fmt.Errorf("failed to mark indexed: %w", err)
	}
	log.Debug("Indexed %d streams", len(streams))
	return nil
}

// clearTracks removes a file's tracks along with their conversations, from
// the external search index first so no hit can outlive its rows.
func (idx *Indexer) clearTracks(ctx context.Context, fileID int64) error {
	if idx.sink != nil {
		ids, err := idx.db.ConversationIDsForFile(ctx, fileID)
		if err != nil {
			return fmt.Errorf("failed to list conversations: %w", err)
		}
		if err := idx.sink.Remove(ctx, ids); err != nil {
			return fmt.Errorf("failed to unindex conversations: %w", err)
		}
	}

	if err := idx.db.DeleteTracksForFile(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete tracks: %w", err)
	}
	return nil
}

// indexTrack extracts, segments and stores the dialogue of one subtitle
// track. Nothing is stored when extraction or parsing fails.
func (idx *Indexer) indexTrack(ctx context.Context, path string, track database.Track) error {
	raw, err := idx.prober.ExtractSubtitle(ctx, path, track.TrackNumber)
	if err != nil {
		metrics.IndexerSubtitleErrors.WithLabelValues("extract").Inc()
		return fmt.Errorf("extract: %w", err)
	}

	script, err := subtitle.Parse(raw)
	if err != nil {
		metrics.IndexerSubtitleErrors.WithLabelValues("parse").Inc()
		return fmt.Errorf("parse: %w", err)
	}

	preamble, err := json.Marshal(script.Preamble())
	if err != nil {
		return fmt.Errorf("encode preamble: %w", err)
	}
	nondialogue, err := json.Marshal(script.NonDialogue())
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}

	conversations, err := buildConversations(subtitle.Segment(script.Events.Dialogue, subtitle.ConversationGap))
	if err != nil {
		return err
	}

	stored, err := idx.db.StoreTrackDialogue(ctx, track.ID, preamble, nondialogue, conversations)
	if err != nil {
		metrics.IndexerSubtitleErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("store: %w", err)
	}
	metrics.IndexerConversationsTotal.Add(float64(len(stored)))

	if idx.sink != nil && len(stored) > 0 {
		if err := idx.sink.Add(ctx, stored); err != nil {
			metrics.IndexerSubtitleErrors.WithLabelValues("search_index").Inc()
			return fmt.Errorf("%w: %w", errSearchIndex, err)
		}
	}
	return nil
}

func buildConversations(segments []subtitle.Conversation) ([]database.NewConversation, error) {
	conversations := make([]database.NewConversation, 0, len(segments))
	for _, seg := range segments {
		conv := database.NewConversation{
			IndexedText: seg.IndexedText(),
			Lines:       make([]database.NewLine, 0, len(seg.Events)),
		}
		for _, ev := range seg.Events {
			event, err := json.Marshal(ev)
			if err != nil {
				return nil, fmt.Errorf("encode event: %w", err)
			}
			conv.Lines = append(conv.Lines, database.NewLine{
				StartMs:     subtitle.Milliseconds(ev.Start),
				EndMs:       subtitle.Milliseconds(ev.End),
				Event:       event,
				DisplayText: ev.Text.Combined,
			})
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// classifyStream maps an ffprobe codec type to a track type. Still images
// (cover art) are kept as video.
func classifyStream(codecType string) (database.TrackType, bool) {
	switch codecType {
	case "video", "image", "images":
		return database.TrackTypeVideo, true
	case "audio":
		return database.TrackTypeAudio, true
	case "subtitle":
		return database.TrackTypeSubtitle, true
	default:
		return "", false
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Prober = (*transcoder.Transcoder)(nil)
