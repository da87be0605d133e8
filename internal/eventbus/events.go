// Package eventbus publishes backtest-progress and download events over
// Redis pub/sub. The HTTP layer consuming them (and translating to SSE)
// lives outside this repository; a nil bus is a silent no-op so the engine
// can run without Redis.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type tags.
const (
	EventBacktestProgress = "backtest_progress"
	EventDownload         = "download"
)

// Download event subtypes.
const (
	DownloadProgress = "progress"
	DownloadComplete = "complete"
	DownloadError    = "error"
)

// Event is the envelope flowing through the bus.
type Event struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent wraps a payload into an envelope.
func NewEvent(eventType, source string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s payload: %w", eventType, err)
	}
	return &Event{
		EventType: eventType,
		Payload:   raw,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}, nil
}

// DownloadEvent mirrors the download progress wire shape.
type DownloadEvent struct {
	Type         string  `json:"type"` // progress | complete | error
	Loaded       int     `json:"loaded,omitempty"`
	Total        int     `json:"total,omitempty"`
	Percent      float64 `json:"percent,omitempty"`
	Cached       int     `json:"cached,omitempty"`
	Downloaded   int     `json:"downloaded,omitempty"`
	CandlesCount int     `json:"candlesCount,omitempty"`
	Message      string  `json:"message,omitempty"`
}
