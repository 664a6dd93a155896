package userpool

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

type AuthEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Username  string            `json:"username,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	FlowType  string            `json:"flow_type,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type EventSink interface {
	Emit(ctx context.Context, event AuthEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuthEvent) {}

type ChannelSink struct {
	events chan AuthEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuthEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuthEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuthEvent {
	return s.events
}

type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuthEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

const (
	eventSignedIn         = "signed_in"
	eventSignInFailed     = "sign_in_failed"
	eventChallengeIssued  = "challenge_issued"
	eventDeviceForgotten  = "device_forgotten"
	eventCacheWriteFailed = "cache_write_failed"
)
