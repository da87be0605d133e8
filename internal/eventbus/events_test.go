package eventbus

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewEventWrapsPayload(t *testing.T) {
	event, err := NewEvent(EventDownload, "data-provider", DownloadEvent{
		Type: DownloadProgress, Loaded: 400, Total: 1000, Percent: 40,
	})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if event.EventType != EventDownload || event.Source != "data-provider" {
		t.Errorf("envelope fields wrong: %+v", event)
	}

	var payload DownloadEvent
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("payload should round-trip: %v", err)
	}
	if payload.Loaded != 400 || payload.Percent != 40 {
		t.Errorf("payload fields wrong: %+v", payload)
	}
}

func TestDownloadEventWireShape(t *testing.T) {
	raw, err := json.Marshal(DownloadEvent{Type: DownloadComplete, Cached: 100, Downloaded: 50, CandlesCount: 150})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, key := range []string{`"type":"complete"`, `"cached":100`, `"downloaded":50`, `"candlesCount":150`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("wire shape should contain %s, got %s", key, raw)
		}
	}

	// Omitted optionals stay off the wire.
	raw, _ = json.Marshal(DownloadEvent{Type: DownloadProgress})
	if strings.Contains(string(raw), "loaded") {
		t.Errorf("zero optionals should be omitted, got %s", raw)
	}
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *Bus

	event, _ := NewEvent(EventBacktestProgress, "engine", map[string]int{"progress": 50})
	bus.Publish(context.Background(), event) // must not panic

	if err := bus.HealthCheck(context.Background()); err != nil {
		t.Errorf("nil bus health check should pass, got %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("nil bus close should pass, got %v", err)
	}
	if err := bus.Subscribe(context.Background(), EventDownload, nil); err == nil {
		t.Error("nil bus subscribe should error")
	}
}
