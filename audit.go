package handoff

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/practiceline/handoff/internal/audit"
)

// AuditEvent is one handoff lifecycle event. Email is masked by every sink
// that writes outside the process.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's async dispatcher.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink delivers audit events to a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one redacted JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// LogSink writes audit events through zerolog.
type LogSink = audit.LogSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return audit.NewLogSink(logger)
}
