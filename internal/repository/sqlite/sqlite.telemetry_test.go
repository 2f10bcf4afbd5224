package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/config"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/database"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
)

func newTestRepo(t *testing.T) *TelemetryRepo {
	t.Helper()
	db, err := database.NewSQLiteDB(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "weather.db"),
		BusyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteDB: %v", err)
	}
	repo, err := NewTelemetryRepository(db)
	if err != nil {
		t.Fatalf("NewTelemetryRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func f64(v float64) *float64 { return &v }

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func countRows(t *testing.T, repo *TelemetryRepo, table string) int {
	t.Helper()
	var n int
	if err := repo.db.GetDB().Get(&n, "SELECT count(*) FROM "+table); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestInsertIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	payload := []byte(`{"timestamp":"2024-05-01T10:00:00Z","sensor_data":{"temperature":21.5}}`)
	reading := &models.SensorReading{TemperatureC: f64(21.5)}

	first, err := repo.Insert(ctx, &models.Packet{Timestamp: ts("2024-05-01T10:00:00Z")}, payload, reading)
	if err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if first.Duplicate || !first.SensorCreated {
		t.Errorf("first insert = %+v, want new packet with sensor row", first)
	}

	for i := 0; i < 3; i++ {
		again, err := repo.Insert(ctx, &models.Packet{Timestamp: ts("2024-05-01T10:00:00Z")}, payload, reading)
		if err != nil {
			t.Fatalf("repeat Insert: %v", err)
		}
		if !again.Duplicate || again.SensorCreated {
			t.Errorf("repeat insert = %+v, want duplicate", again)
		}
		if again.PacketID != first.PacketID {
			t.Errorf("repeat PacketID = %d, want %d", again.PacketID, first.PacketID)
		}
	}

	if n := countRows(t, repo, "packets"); n != 1 {
		t.Errorf("packets = %d, want 1", n)
	}
	if n := countRows(t, repo, "sensor_data"); n != 1 {
		t.Errorf("sensor_data = %d, want 1", n)
	}
}

func TestInsertConcurrentSamePayload(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	payload := []byte(`{"timestamp":"2024-05-01T10:00:00Z","sensor_data":{"temperature_c":19}}`)

	const workers = 16
	results := make([]models.InsertResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			reading := &models.SensorReading{TemperatureC: f64(19)}
			results[i], errs[i] = repo.Insert(ctx, &models.Packet{Timestamp: ts("2024-05-01T10:00:00Z")}, payload, reading)
		}(i)
	}
	close(start)
	wg.Wait()

	created := 0
	for i, res := range results {
		if errs[i] != nil {
			t.Fatalf("Insert %d: %v", i, errs[i])
		}
		if !res.Duplicate {
			created++
			if !res.SensorCreated {
				t.Errorf("Insert %d created the packet without its reading", i)
			}
		} else if res.SensorCreated {
			t.Errorf("Insert %d is a duplicate but created a reading", i)
		}
		if res.PacketID != results[0].PacketID {
			t.Errorf("Insert %d PacketID = %d, want %d", i, res.PacketID, results[0].PacketID)
		}
	}
	if created != 1 {
		t.Errorf("%d inserts created the packet, want exactly 1", created)
	}
	if n := countRows(t, repo, "packets"); n != 1 {
		t.Errorf("packets = %d, want 1", n)
	}
	if n := countRows(t, repo, "sensor_data"); n != 1 {
		t.Errorf("sensor_data = %d, want 1", n)
	}
}

func TestInsertDedupIsByPayloadBytes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := ts("2024-05-01T10:00:00Z")

	// Same logical content, different bytes: both are stored.
	a := []byte(`{"timestamp":"2024-05-01T10:00:00Z","rssi":-80}`)
	b := []byte(`{"rssi":-80,"timestamp":"2024-05-01T10:00:00Z"}`)

	for _, payload := range [][]byte{a, b} {
		res, err := repo.Insert(ctx, &models.Packet{Timestamp: at}, payload, nil)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if res.Duplicate {
			t.Errorf("payload %s reported as duplicate", payload)
		}
	}
	if n := countRows(t, repo, "packets"); n != 2 {
		t.Errorf("packets = %d, want 2", n)
	}
}

func TestInsertErrorPacketHasNoReading(t *testing.T) {
	repo := newTestRepo(t)
	errorType := "crc"

	res, err := repo.Insert(context.Background(), &models.Packet{
		Timestamp: ts("2024-05-01T10:00:00Z"),
		Error:     true,
		ErrorType: &errorType,
	}, []byte("crc-failure"), &models.SensorReading{TemperatureC: f64(99)})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if res.SensorCreated {
		t.Error("error packet created a sensor row")
	}
	if n := countRows(t, repo, "sensor_data"); n != 0 {
		t.Errorf("sensor_data = %d, want 0", n)
	}
}

func TestLatest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Latest(ctx)
	if !errors.IsNotFound(err) {
		t.Fatalf("Latest on empty store: err = %v, want not_found", err)
	}

	insert := func(at string, payload string, temp float64) {
		t.Helper()
		_, err := repo.Insert(ctx, &models.Packet{Timestamp: ts(at)}, []byte(payload), &models.SensorReading{TemperatureC: f64(temp)})
		if err != nil {
			t.Fatalf("Insert %s: %v", payload, err)
		}
	}

	insert("2024-05-01T10:00:00Z", "p1", 10)
	insert("2024-05-01T12:00:00Z", "A", 20)
	insert("2024-05-01T12:00:00Z", "B", 30)
	// Arrives later but carries an older timestamp.
	insert("2024-05-01T11:00:00Z", "late", 40)

	latest, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Sensor == nil || *latest.Sensor.TemperatureC != 30 {
		t.Errorf("Latest reading = %+v, want the second packet at the newest timestamp", latest.Sensor)
	}
	if !latest.Timestamp.Equal(ts("2024-05-01T12:00:00Z")) {
		t.Errorf("Latest timestamp = %v", latest.Timestamp)
	}
	if latest.PayloadHash != PayloadHash([]byte("B")) {
		t.Errorf("Latest payload hash = %s", latest.PayloadHash)
	}
}

func TestLatestWithoutReading(t *testing.T) {
	repo := newTestRepo(t)
	errorType := "timeout"
	if _, err := repo.Insert(context.Background(), &models.Packet{
		Timestamp: ts("2024-05-01T10:00:00Z"),
		Error:     true,
		ErrorType: &errorType,
	}, []byte("err"), nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	latest, err := repo.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Sensor != nil {
		t.Errorf("Latest sensor = %+v, want nil", latest.Sensor)
	}
	if !latest.Error || latest.ErrorType == nil || *latest.ErrorType != "timeout" {
		t.Errorf("Latest packet = %+v, want error packet", latest.Packet)
	}
}

func TestRangeForTrends(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rows := []struct {
		at      string
		payload string
	}{
		{"2024-05-01T09:59:59Z", "before"},
		{"2024-05-01T10:00:00Z", "start"},
		{"2024-05-01T10:30:00Z", "middle"},
		{"2024-05-01T11:00:00Z", "end"},
	}
	// Insert out of order to check ordering by timestamp.
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if _, err := repo.Insert(ctx, &models.Packet{Timestamp: ts(r.at)}, []byte(r.payload), &models.SensorReading{HumidityPct: f64(float64(i))}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	errorType := "crc"
	if _, err := repo.Insert(ctx, &models.Packet{Timestamp: ts("2024-05-01T10:15:00Z"), Error: true, ErrorType: &errorType}, []byte("bad"), nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := repo.RangeForTrends(ctx, ts("2024-05-01T10:00:00Z"), ts("2024-05-01T11:00:00Z"))
	if err != nil {
		t.Fatalf("RangeForTrends: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RangeForTrends returned %d rows, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(ts("2024-05-01T10:00:00Z")) || !got[1].Timestamp.Equal(ts("2024-05-01T10:30:00Z")) {
		t.Errorf("RangeForTrends timestamps = %v, %v", got[0].Timestamp, got[1].Timestamp)
	}
	if got[0].Reading.HumidityPct == nil || *got[0].Reading.HumidityPct != 1 {
		t.Errorf("first reading = %+v", got[0].Reading)
	}
	if got[0].Reading.TemperatureC != nil {
		t.Errorf("unset metric came back as %v", *got[0].Reading.TemperatureC)
	}
}

func TestDiagnostics(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := ts("2024-05-01T10:00:00Z")

	for i := 0; i < 60; i++ {
		packet := &models.Packet{Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if i%10 == 0 {
			errorType := "crc"
			packet.Error = true
			packet.ErrorType = &errorType
		}
		if _, err := repo.Insert(ctx, packet, []byte{byte(i)}, nil); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	all, err := repo.Diagnostics(ctx, models.DiagnosticsFilter{})
	if err != nil {
		t.Fatalf("Diagnostics: %v", err)
	}
	if len(all) != DefaultDiagnosticsLimit {
		t.Errorf("default limit returned %d rows, want %d", len(all), DefaultDiagnosticsLimit)
	}
	if !all[0].Timestamp.Equal(base.Add(59 * time.Minute)) {
		t.Errorf("first row timestamp = %v, want newest", all[0].Timestamp)
	}

	errs, err := repo.Diagnostics(ctx, models.DiagnosticsFilter{OnlyErrors: true, Limit: 100})
	if err != nil {
		t.Fatalf("Diagnostics only errors: %v", err)
	}
	if len(errs) != 6 {
		t.Errorf("only errors returned %d rows, want 6", len(errs))
	}
	for _, p := range errs {
		if !p.Error {
			t.Errorf("non-error packet %d in only_errors result", p.ID)
		}
	}
}

func TestClampDiagnosticsLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, DefaultDiagnosticsLimit},
		{0, DefaultDiagnosticsLimit},
		{10, 10},
		{MaxDiagnosticsLimit + 1, MaxDiagnosticsLimit},
	}
	for _, tt := range tests {
		if got := ClampDiagnosticsLimit(tt.in); got != tt.want {
			t.Errorf("ClampDiagnosticsLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
