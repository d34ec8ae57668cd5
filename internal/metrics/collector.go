package metrics

import (
	"context"
	"time"

	"subtitle-index/internal/logging"
)

// StatsProvider supplies library totals to the Collector.
type StatsProvider interface {
	GetStats(ctx context.Context) (Stats, error)
}

// SizeReporter is implemented by providers that can publish their storage
// size. The Collector calls it on every tick.
type SizeReporter interface {
	UpdateDBMetrics()
}

// Stats holds the current library totals
type Stats struct {
	Libraries      int
	FilesIndexed   int
	FilesPending   int
	FilesMissing   int
	VideoTracks    int
	AudioTracks    int
	SubtitleTracks int
	Conversations  int
	Lines          int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	if sr, ok := c.statsProvider.(SizeReporter); ok {
		sr.UpdateDBMetrics()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := c.statsProvider.GetStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}
	Publish(stats)

	logging.Debug("Metrics collected: libraries=%d, indexed=%d, pending=%d, conversations=%d",
		stats.Libraries, stats.FilesIndexed, stats.FilesPending, stats.Conversations)
}

// Publish copies a Stats snapshot into the library gauges.
func Publish(stats Stats) {
	LibrariesTotal.Set(float64(stats.Libraries))
	FilesTotal.WithLabelValues("indexed").Set(float64(stats.FilesIndexed))
	FilesTotal.WithLabelValues("pending").Set(float64(stats.FilesPending))
	FilesTotal.WithLabelValues("missing").Set(float64(stats.FilesMissing))
	TracksTotal.WithLabelValues("video").Set(float64(stats.VideoTracks))
	TracksTotal.WithLabelValues("audio").Set(float64(stats.AudioTracks))
	TracksTotal.WithLabelValues("subtitle").Set(float64(stats.SubtitleTracks))
	ConversationsTotal.Set(float64(stats.Conversations))
	LinesTotal.Set(float64(stats.Lines))
}
