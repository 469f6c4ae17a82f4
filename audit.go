package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AuditEvent is a single security-relevant record emitted by the
// engine. Fields not relevant to a given event type are left zero.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Username  string            `json:"username,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the engine's async dispatcher. Emit is
// called from a single dispatcher goroutine, so implementations need no
// internal locking unless they are shared elsewhere. Emit must not
// panic; a panicking sink takes the dispatcher down with it.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events. It is the default when auditing is
// enabled but no sink is configured.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a channel for in-process consumers.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line. The mutex guards the
// writer in case the sink is also written outside the dispatcher.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Write(line)
}

// LogrusSink emits events as structured logrus entries. Failed
// operations log at Warn, successful ones at Info.
type LogrusSink struct {
	logger *logrus.Logger
}

func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusSink{logger: logger}
}

func (s *LogrusSink) Emit(_ context.Context, event AuditEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"success":    event.Success,
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.Username != "" {
		fields["username"] = event.Username
	}
	if event.Provider != "" {
		fields["provider"] = event.Provider
	}
	if event.IP != "" {
		fields["ip"] = event.IP
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := s.logger.WithFields(fields)
	if event.Success {
		entry.Info(event.EventType)
	} else {
		entry.Warn(event.EventType)
	}
}
