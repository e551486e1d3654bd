// Package monitor samples the service's health: live runs, tick threads and
// storage write backlog. Samples are rendered for the :STATUS: command and,
// when running, written to a status file, the performance table and InfluxDB.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"gorm.io/gorm"

	"github.com/OCAP2/extracto/internal/influx"
	"github.com/OCAP2/extracto/internal/model"
	"github.com/OCAP2/extracto/internal/scheduler"
	"github.com/OCAP2/extracto/internal/storage"
)

// DefaultInterval is the sampling period of Start.
const DefaultInterval = time.Second

// PointWriter accepts InfluxDB points; *influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service. Everything
// except Logger is optional.
type Dependencies struct {
	ActiveRuns  func() int
	Scheduler   *scheduler.Manager
	Storage     storage.Backend
	StorageType string
	DB          *gorm.DB
	Influx      PointWriter
	StatusPath  string
	Interval    time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// Status is the rendered health snapshot.
type Status struct {
	Time          time.Time              `json:"time"`
	StorageType   string                 `json:"storageType"`
	ActiveRuns    int                    `json:"activeRuns"`
	Threads       []scheduler.ThreadInfo `json:"threads"`
	PendingWrites int                    `json:"pendingWrites"`
	LastFlushMs   float32                `json:"lastFlushMs"`
	LastExport    string                 `json:"lastExport,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps Dependencies

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// GetStatus returns the current status and its performance row.
func (s *Service) GetStatus() (Status, model.Performance) {
	st := Status{
		Time:        s.deps.Now(),
		StorageType: s.deps.StorageType,
		Threads:     []scheduler.ThreadInfo{},
	}
	if s.deps.ActiveRuns != nil {
		st.ActiveRuns = s.deps.ActiveRuns()
	}
	if s.deps.Scheduler != nil {
		st.Threads = s.deps.Scheduler.Threads()
	}
	if b, ok := s.deps.Storage.(storage.Buffered); ok {
		st.PendingWrites = b.PendingWrites()
		st.LastFlushMs = float32(b.LastFlushDuration().Microseconds()) / 1000
	}
	if e, ok := s.deps.Storage.(storage.Exporter); ok {
		st.LastExport = e.LastExportPath()
	}

	perf := model.Performance{
		Time:                st.Time,
		ActiveRuns:          st.ActiveRuns,
		Threads:             len(st.Threads),
		HistoryQueue:        st.PendingWrites,
		LastFlushDurationMs: st.LastFlushMs,
	}
	return st, perf
}

// Render returns the status as indented JSON.
func (s *Service) Render() (string, error) {
	st, _ := s.GetStatus()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render status: %w", err)
	}
	return string(data), nil
}

// PerformancePoint converts a performance row into an InfluxDB point.
func PerformancePoint(p model.Performance) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		influx.MeasurementPerformance,
		map[string]string{},
		map[string]any{
			"activeRuns":          p.ActiveRuns,
			"threads":             p.Threads,
			"historyQueue":        p.HistoryQueue,
			"lastFlushDurationMs": p.LastFlushDurationMs,
		},
		p.Time,
	)
}

// Sample takes one status snapshot and writes it to every configured sink.
// Sink failures are logged, not returned.
func (s *Service) Sample(ctx context.Context) Status {
	st, perf := s.GetStatus()
	logger := s.deps.Logger

	if s.deps.StatusPath != "" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err == nil {
			err = os.WriteFile(s.deps.StatusPath, append(data, '\n'), 0644)
		}
		if err != nil {
			logger.ErrorContext(ctx, "Error writing status file", "path", s.deps.StatusPath, "error", err)
		}
	}

	if s.deps.DB != nil {
		if err := s.deps.DB.WithContext(ctx).Create(&perf).Error; err != nil {
			logger.ErrorContext(ctx, "Error writing performance row", "error", err)
		}
	}

	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(influx.PerformanceBucket, PerformancePoint(perf)); err != nil {
			logger.DebugContext(ctx, "Error writing performance point", "error", err)
		}
	}
	return st
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Start samples every interval until Stop is called.
func (s *Service) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Sample(context.Background())
			}
		}
	}()
}

// Stop stops the status monitor and waits for the sampling loop to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
