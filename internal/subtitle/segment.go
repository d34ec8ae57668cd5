package subtitle

import (
	"math"
	"sort"
	"strings"
)

// ConversationGap is the longest pause, in seconds, between the end of the
// dialogue so far and the start of the next line that still continues the
// same conversation.
const ConversationGap = 1.5

// Conversation is a run of dialogue events with no pause longer than the
// segmentation gap.
type Conversation struct {
	Events []Event
}

// Segment sorts dialogue by start time and groups it into conversations. A
// cursor tracks the latest end time seen so far. An event whose start lies
// more than gap seconds after the cursor begins a new conversation. Times
// are compared in whole milliseconds so parsed centisecond timestamps land
// exactly on the threshold.
func Segment(dialogue []Event, gap float64) []Conversation {
	if len(dialogue) == 0 {
		return nil
	}

	sorted := make([]Event, len(dialogue))
	copy(sorted, dialogue)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var (
		conversations []Conversation
		pending       []Event
		cursor        = Milliseconds(sorted[0].Start)
		gapMs         = Milliseconds(gap)
	)
	for i, ev := range sorted {
		cursor = max(cursor, Milliseconds(ev.End))
		pending = append(pending, ev)

		if i+1 == len(sorted) || Milliseconds(sorted[i+1].Start) > cursor+gapMs {
			conversations = append(conversations, Conversation{Events: pending})
			pending = nil
		}
	}
	return conversations
}

// IndexedText is the searchable body of a conversation: the plain text of
// each event joined by newlines, with line break escapes turned into spaces.
func (c Conversation) IndexedText() string {
	parts := make([]string, len(c.Events))
	for i, ev := range c.Events {
		parts[i] = ev.Text.Combined
	}
	return PlainText(strings.Join(parts, "\n"))
}

// Milliseconds rounds a time in seconds to whole milliseconds.
func Milliseconds(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}

// Shift moves each event earlier by offset seconds, clamping at zero. The
// input slice is not modified.
func Shift(events []Event, offset float64) []Event {
	shifted := make([]Event, len(events))
	for i, ev := range events {
		ev.Start = math.Max(ev.Start-offset, 0)
		ev.End = math.Max(ev.End-offset, 0)
		shifted[i] = ev
	}
	return shifted
}
