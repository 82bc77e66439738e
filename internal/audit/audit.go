package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/practiceline/handoff/internal/redact"
)

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Redacted returns a copy that is safe to persist or print: the email is
// masked and metadata keys that could carry credentials are dropped.
func (e Event) Redacted() Event {
	e.Email = redact.Email(e.Email)
	if len(e.Metadata) == 0 {
		return e
	}
	meta := make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		if redact.SecretKey(k) {
			continue
		}
		meta[k] = v
	}
	e.Metadata = meta
	return e
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one redacted JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event.Redacted())
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LogSink writes audit events through a zerolog logger. Failed exchanges
// are normal outcomes and are logged at info, not error.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	evt := s.logger.Info()
	if Reason(event.Reason).Operational() {
		evt = s.logger.Warn()
	}
	evt = redact.Identity(evt, event.UserID, event.TenantID, event.Email).
		Str("audit_id", event.ID).
		Str("event_type", event.EventType).
		Bool("success", event.Success).
		Time("at", event.Timestamp)
	if event.IP != "" {
		evt = evt.Str("ip", event.IP)
	}
	if event.Reason != "" {
		evt = evt.Str("reason", event.Reason)
	}
	for k, v := range event.Metadata {
		evt = evt.Str("meta_"+k, v)
	}
	evt.Msg("audit")
}
