// Package subtitle reads and writes Advanced SubStation Alpha scripts and
// groups their dialogue into conversations.
//
// Parse accepts the output of `ffmpeg -f ass`, keeping the script info,
// styles, event format, comments and dialogue. Event text is retained
// verbatim so a script assembled from stored events serializes back to the
// original override tags.
//
// Segment implements the conversation split: dialogue is sorted by start
// time and a new conversation begins whenever the next line starts more
// than ConversationGap seconds after the latest end time seen so far.
package subtitle
