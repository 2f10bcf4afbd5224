package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/config"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/ingest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: config.DatabaseConfig{
			Path:        filepath.Join(t.TempDir(), "weather.db"),
			BusyTimeout: time.Second,
		},
		MQTT: config.MQTTConfig{
			Address:   "127.0.0.1:0",
			BaseTopic: "weather_station",
			QueueSize: 4,
		},
		Trends: config.TrendsConfig{MaxPoints: 600, DefaultHours: 24},
		Sandbox: config.SandboxConfig{
			Timeout:  time.Second,
			MaxRows:  999,
			MaxChars: 10000,
			MaxLines: 200,
			PoolSize: 1,
		},
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestIngestEventsReachMonitoring(t *testing.T) {
	s, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		s.broker.Close()
		s.closeStores()
	})

	ctx := context.Background()
	topic := s.broker.Topic()
	payload := []byte(`{"timestamp":"2024-05-01T10:00:00Z","sensor_data":{"temperature_c":20}}`)
	s.pipeline.Ingest(ctx, ingest.Message{Topic: topic, Payload: payload})
	s.pipeline.Ingest(ctx, ingest.Message{Topic: topic, Payload: payload})
	s.pipeline.Ingest(ctx, ingest.Message{Topic: topic, Payload: []byte("not json")})

	want := map[string]int64{
		ingest.EventStored:    1,
		ingest.EventDuplicate: 1,
		ingest.EventDropped:   1,
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		ok := true
		for event, n := range want {
			if s.Monitoring().Count(event) != n {
				ok = false
			}
		}
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("counters = %v, want %v", s.Monitoring().Snapshot().Counters, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
