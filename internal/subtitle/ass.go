package subtitle

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultStyleFormat and DefaultEventFormat are the v4+ column layouts used
// when a script does not declare its own.
var (
	DefaultStyleFormat = []string{
		"Name", "Fontname", "Fontsize", "PrimaryColour", "SecondaryColour", "OutlineColour", "BackColour",
		"Bold", "Italic", "Underline", "StrikeOut", "ScaleX", "ScaleY", "Spacing", "Angle",
		"BorderStyle", "Outline", "Shadow", "Alignment", "MarginL", "MarginR", "MarginV", "Encoding",
	}
	DefaultEventFormat = []string{
		"Layer", "Start", "End", "Style", "Name", "MarginL", "MarginR", "MarginV", "Effect", "Text",
	}
)

// InfoField is one "Key: Value" entry of the [Script Info] section.
type InfoField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Style holds the values of one Style line keyed by column name.
type Style map[string]string

// Styles is the [V4+ Styles] section.
type Styles struct {
	Format []string `json:"format"`
	Style  []Style  `json:"style"`
}

// Events is the [Events] section. Picture, Sound, Movie and Command lines
// are not retained.
type Events struct {
	Format   []string `json:"format"`
	Comment  []Event  `json:"comment"`
	Dialogue []Event  `json:"dialogue"`
}

// Script is a parsed Advanced SubStation Alpha document.
type Script struct {
	Info   []InfoField `json:"info"`
	Styles Styles      `json:"styles"`
	Events Events      `json:"events"`
}

// Event is a Dialogue or Comment line. Start and End are in seconds.
type Event struct {
	Layer   int     `json:"Layer"`
	Start   float64 `json:"Start"`
	End     float64 `json:"End"`
	Style   string  `json:"Style"`
	Name    string  `json:"Name"`
	MarginL int     `json:"MarginL"`
	MarginR int     `json:"MarginR"`
	MarginV int     `json:"MarginV"`
	Effect  string  `json:"Effect"`
	Text    Text    `json:"Text"`
}

// Preamble is the part of a script that precedes its events.
type Preamble struct {
	Info   []InfoField `json:"info"`
	Styles Styles      `json:"styles"`
}

// NonDialogue is the event section without its dialogue.
type NonDialogue struct {
	Format  []string `json:"format"`
	Comment []Event  `json:"comment"`
}

// Preamble returns the script's info and styles.
func (s *Script) Preamble() Preamble {
	return Preamble{Info: s.Info, Styles: s.Styles}
}

// NonDialogue returns the script's event format and comments.
func (s *Script) NonDialogue() NonDialogue {
	return NonDialogue{Format: s.Events.Format, Comment: s.Events.Comment}
}

// Assemble builds a script from a stored preamble, stored non-dialogue
// events and a selection of dialogue.
func Assemble(p Preamble, nd NonDialogue, dialogue []Event) *Script {
	return &Script{
		Info:   p.Info,
		Styles: p.Styles,
		Events: Events{
			Format:   nd.Format,
			Comment:  nd.Comment,
			Dialogue: dialogue,
		},
	}
}

type section int

const (
	sectionNone section = iota
	sectionInfo
	sectionStyles
	sectionEvents
	sectionOther
)

// Parse decodes an ASS or SSA script. Unknown sections are skipped. A
// malformed event time is an error.
func Parse(raw string) (*Script, error) {
	raw = strings.TrimPrefix(raw, "\ufeff")

	script := &Script{}
	current := sectionNone

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimSuffix(scanner.Text(), "\r"))
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = sectionFor(line[1 : len(line)-1])
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimLeft(value, " \t")

		switch current {
		case sectionInfo:
			if strings.HasPrefix(line, ";") {
				continue
			}
			script.Info = append(script.Info, InfoField{Key: key, Value: value})

		case sectionStyles:
			switch key {
			case "Format":
				script.Styles.Format = splitFormat(value)
			case "Style":
				format := script.Styles.Format
				if format == nil {
					format = DefaultStyleFormat
				}
				script.Styles.Style = append(script.Styles.Style, parseStyle(format, value))
			}

		case sectionEvents:
			switch key {
			case "Format":
				script.Events.Format = splitFormat(value)
			case "Dialogue", "Comment":
				format := script.Events.Format
				if format == nil {
					format = DefaultEventFormat
				}
				ev, err := parseEvent(format, value)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				if key == "Dialogue" {
					script.Events.Dialogue = append(script.Events.Dialogue, ev)
				} else {
					script.Events.Comment = append(script.Events.Comment, ev)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle script: %w", err)
	}

	return script, nil
}

func sectionFor(name string) section {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "script info":
		return sectionInfo
	case "v4+ styles", "v4 styles", "v4 styles+":
		return sectionStyles
	case "events":
		return sectionEvents
	default:
		return sectionOther
	}
}

func splitFormat(value string) []string {
	parts := strings.Split(value, ",")
	format := make([]string, 0, len(parts))
	for _, p := range parts {
		format = append(format, strings.TrimSpace(p))
	}
	return format
}

func parseStyle(format []string, value string) Style {
	values := strings.SplitN(value, ",", len(format))
	style := make(Style, len(format))
	for i, name := range format {
		if i < len(values) {
			style[name] = strings.TrimSpace(values[i])
		}
	}
	return style
}

// parseEvent splits value into len(format) columns. The last column (Text)
// keeps any commas it contains.
func parseEvent(format []string, value string) (Event, error) {
	values := strings.SplitN(value, ",", len(format))

	var ev Event
	for i, name := range format {
		if i >= len(values) {
			break
		}
		v := values[i]
		if name != "Text" {
			v = strings.TrimSpace(v)
		}

		var err error
		switch name {
		case "Layer":
			ev.Layer, _ = strconv.Atoi(v)
		case "Start":
			ev.Start, err = ParseTime(v)
		case "End":
			ev.End, err = ParseTime(v)
		case "Style":
			ev.Style = v
		case "Name", "Actor":
			ev.Name = v
		case "MarginL":
			ev.MarginL, _ = strconv.Atoi(v)
		case "MarginR":
			ev.MarginR, _ = strconv.Atoi(v)
		case "MarginV":
			ev.MarginV, _ = strconv.Atoi(v)
		case "Effect":
			ev.Effect = v
		case "Text":
			ev.Text = ParseText(v)
		}
		if err != nil {
			return Event{}, err
		}
	}
	return ev, nil
}

// ParseTime converts an "H:MM:SS.cc" timestamp to seconds.
func ParseTime(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return float64(h*3600+m*60) + sec, nil
}

// FormatTime renders seconds as "H:MM:SS.cc". Negative values clamp to zero.
func FormatTime(seconds float64) string {
	cs := int64(math.Round(seconds * 100))
	if cs < 0 {
		cs = 0
	}
	h := cs / 360000
	m := cs / 6000 % 60
	s := cs / 100 % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}

// String serializes the script. Event text is written from Text.Raw.
func (s *Script) String() string {
	var b strings.Builder

	b.WriteString("[Script Info]\n")
	hasType := false
	for _, f := range s.Info {
		if strings.EqualFold(f.Key, "ScriptType") {
			hasType = true
		}
		fmt.Fprintf(&b, "%s: %s\n", f.Key, f.Value)
	}
	if !hasType {
		b.WriteString("ScriptType: v4.00+\n")
	}

	b.WriteString("\n[V4+ Styles]\n")
	styleFormat := s.Styles.Format
	if len(styleFormat) == 0 {
		styleFormat = DefaultStyleFormat
	}
	fmt.Fprintf(&b, "Format: %s\n", strings.Join(styleFormat, ", "))
	for _, st := range s.Styles.Style {
		values := make([]string, len(styleFormat))
		for i, name := range styleFormat {
			values[i] = st[name]
		}
		fmt.Fprintf(&b, "Style: %s\n", strings.Join(values, ","))
	}

	b.WriteString("\n[Events]\n")
	eventFormat := s.Events.Format
	if len(eventFormat) == 0 {
		eventFormat = DefaultEventFormat
	}
	fmt.Fprintf(&b, "Format: %s\n", strings.Join(eventFormat, ", "))
	for _, ev := range s.Events.Comment {
		fmt.Fprintf(&b, "Comment: %s\n", formatEvent(eventFormat, ev))
	}
	for _, ev := range s.Events.Dialogue {
		fmt.Fprintf(&b, "Dialogue: %s\n", formatEvent(eventFormat, ev))
	}

	return b.String()
}

func formatEvent(format []string, ev Event) string {
	values := make([]string, len(format))
	for i, name := range format {
		switch name {
		case "Layer":
			values[i] = strconv.Itoa(ev.Layer)
		case "Marked":
			values[i] = "Marked=0"
		case "Start":
			values[i] = FormatTime(ev.Start)
		case "End":
			values[i] = FormatTime(ev.End)
		case "Style":
			values[i] = ev.Style
		case "Name", "Actor":
			values[i] = ev.Name
		case "MarginL":
			values[i] = strconv.Itoa(ev.MarginL)
		case "MarginR":
			values[i] = strconv.Itoa(ev.MarginR)
		case "MarginV":
			values[i] = strconv.Itoa(ev.MarginV)
		case "Effect":
			values[i] = ev.Effect
		case "Text":
			values[i] = ev.Text.Raw
		}
	}
	return strings.Join(values, ",")
}
