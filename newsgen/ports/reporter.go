package ports

import "github.com/rs/zerolog"

// Reporter receives progress of a long running job.
type Reporter interface {
	Progress(file, split string, done, total int)
	Warning(message string)
}

// LogReporter reports through a zerolog logger.
type LogReporter struct {
	Log zerolog.Logger
}

// NewLogReporter creates a new LogReporter
func NewLogReporter(log zerolog.Logger) *LogReporter {
	return &LogReporter{Log: log}
}

func (r *LogReporter) Progress(file, split string, done, total int) {
	r.Log.Info().
		Str("file", file).
		Str("split", split).
		Int("done", done).
		Int("total", total).
		Msg("batch encoded")
}

func (r *LogReporter) Warning(message string) {
	r.Log.Warn().Msg(message)
}

// Discard drops every report.
type Discard struct{}

func (Discard) Progress(string, string, int, int) {}
func (Discard) Warning(string)                    {}
