package database

import "encoding/json"

// TrackType is the stream kind of a Track.
type TrackType string

const (
	TrackTypeVideo    TrackType = "video"
	TrackTypeAudio    TrackType = "audio"
	TrackTypeSubtitle TrackType = "subtitle"
)

// Library is a registered root directory. Path is relative to the scan root
// unless absolute.
type Library struct {
	ID              int64  `json:"id"`
	Path            string `json:"path"`
	SearchByDefault bool   `json:"searchByDefault"`
	StillExists     bool   `json:"stillExists"`
}

// File is a filesystem entry inside a library. Path is relative to the
// library root and always uses '/' separators. LastModified is in
// milliseconds since the Unix epoch.
type File struct {
	ID           int64  `json:"id"`
	LibraryID    int64  `json:"libraryId"`
	Path         string `json:"path"`
	LastModified int64  `json:"lastModified"`
	Size         int64  `json:"size"`
	StillExists  bool   `json:"stillExists"`
	Indexed      bool   `json:"indexed"`
}

// Track is one media stream of a File. TrackNumber is the source stream
// index used to address the stream again when rendering.
type Track struct {
	ID          int64     `json:"id"`
	FileID      int64     `json:"fileId"`
	TrackNumber int       `json:"streamIndex"`
	Type        TrackType `json:"type"`
	Language    *string   `json:"language"`
	Title       *string   `json:"title"`
}

// TrackDetails is a Track with its stored subtitle preamble and
// non-dialogue events decoded back into JSON.
type TrackDetails struct {
	Track
	Preamble          json.RawMessage `json:"preamble"`
	NondialogueEvents json.RawMessage `json:"nondialogueEvents"`
}

// Line is one stored dialogue event.
type Line struct {
	ConversationID int64           `json:"conversationId"`
	StartMs        int64           `json:"startMs"`
	EndMs          int64           `json:"endMs"`
	DisplayText    string          `json:"displayText"`
	Event          json.RawMessage `json:"event"`
}

// TrackWithLines is a subtitle track and every line of its dialogue in
// start order.
type TrackWithLines struct {
	Track TrackDetails `json:"track"`
	Lines []Line       `json:"lines"`
}

// FileDetails is a File and its tracks.
type FileDetails struct {
	File   File    `json:"file"`
	Tracks []Track `json:"tracks"`
}

// NewConversation is a segmented group of dialogue ready to be stored.
type NewConversation struct {
	IndexedText string
	Lines       []NewLine
}

// NewLine is one dialogue event of a NewConversation.
type NewLine struct {
	StartMs     int64
	EndMs       int64
	Event       json.RawMessage
	DisplayText string
}

// Conversation is a stored conversation's identity and searchable text.
type Conversation struct {
	ID          int64
	TrackID     int64
	IndexedText string
}

// ConversationHit is one conversation matching a search, joined with its
// track, file and library.
type ConversationHit struct {
	ConversationID int64
	TrackID        int64
	FileID         int64
	LibraryID      int64
	FilePath       string
	Language       *string
	TrackTitle     *string
	Preview        string
	Rank           float64
}

// TrackSource locates a track's stream on disk.
type TrackSource struct {
	TrackID     int64
	Type        TrackType
	LibraryPath string
	FilePath    string
	StreamIndex int
}

// Folder is a directory node derived from stored file paths. Path is
// relative to the library root and ends with '/'.
type Folder struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Children []*Folder `json:"children"`
}
