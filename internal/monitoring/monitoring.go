package monitoring

import (
	"sync"
	"time"

	nuts "github.com/vaudience/go-nuts"
)

// Config holds monitoring configuration
type Config struct {
	// LogEvery logs a counter summary after this many events. Zero
	// disables summaries.
	LogEvery int64
}

// Snapshot is a point-in-time copy of the event counters.
type Snapshot struct {
	Since       time.Time        `json:"since"`
	Counters    map[string]int64 `json:"counters"`
	LastEventAt *time.Time       `json:"last_event_at,omitempty"`
}

// Service counts monitored events by name.
type Service struct {
	config   Config
	mu       sync.Mutex
	since    time.Time
	lastAt   time.Time
	total    int64
	counters map[string]int64
}

// NewService creates a new monitoring service
func NewService(config Config) *Service {
	return &Service{
		config:   config,
		since:    time.Now().UTC(),
		counters: make(map[string]int64),
	}
}

// RecordEvent counts one occurrence of eventName.
func (s *Service) RecordEvent(eventName string) {
	s.mu.Lock()
	s.counters[eventName]++
	s.total++
	s.lastAt = time.Now().UTC()
	total := s.total
	logNow := s.config.LogEvery > 0 && total%s.config.LogEvery == 0
	var summary map[string]int64
	if logNow {
		summary = s.copyCounters()
	}
	s.mu.Unlock()

	if logNow {
		nuts.L.Infof("[Monitoring] %d events so far: %v", total, summary)
	}
}

// Snapshot returns the current counters.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Since: s.since, Counters: s.copyCounters()}
	if !s.lastAt.IsZero() {
		last := s.lastAt
		snap.LastEventAt = &last
	}
	return snap
}

// Count returns the counter for a single event.
func (s *Service) Count(eventName string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[eventName]
}

func (s *Service) copyCounters() map[string]int64 {
	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}
