package transcoder

import "strconv"

// Input is one ffmpeg input file. Seek and Duration are in seconds; a zero
// Duration reads to the end.
type Input struct {
	Path     string
	Seek     float64
	Duration float64
}

// Job describes one ffmpeg invocation. Options are raw output arguments in
// order, e.g. "-c:v", "libx264". Output is a file path or "-" for stdout.
type Job struct {
	Kind        string
	Inputs      []Input
	FilterGraph string
	Maps        []string
	Options     []string
	Output      string
}

// Args builds the ffmpeg argument list.
func (j Job) Args() []string {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y"}

	for _, in := range j.Inputs {
		if in.Seek > 0 {
			args = append(args, "-ss", Seconds(in.Seek))
		}
		if in.Duration > 0 {
			args = append(args, "-t", Seconds(in.Duration))
		}
		args = append(args, "-i", in.Path)
	}

	if j.FilterGraph != "" {
		args = append(args, "-filter_complex", j.FilterGraph)
	}
	for _, m := range j.Maps {
		args = append(args, "-map", m)
	}

	args = append(args, j.Options...)
	return append(args, j.Output)
}

// Seconds formats a time offset for ffmpeg.
func Seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
