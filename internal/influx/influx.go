// Package influx ships per-tick run metrics to InfluxDB. When the server
// cannot be reached, points are written as line protocol to a gzip backup
// file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/OCAP2/extracto/internal/config"
	"github.com/OCAP2/extracto/pkg/core"
)

// PerformanceBucket receives service-level points such as queue lengths.
const PerformanceBucket = "extracto_performance"

// Measurement names.
const (
	MeasurementTick        = "tick"
	MeasurementRunSummary  = "run_summary"
	MeasurementPerformance = "performance"
)

const retentionSeconds = 60 * 60 * 24 * 90

// Manager handles InfluxDB connections and writes.
type Manager struct {
	cfg    config.InfluxConfig
	logger zerolog.Logger

	mu           sync.Mutex
	client       influxdb2.Client
	writers      map[string]influxdb2_api.WriteAPI
	backupFile   *os.File
	backupWriter *gzip.Writer
	valid        bool
	backupPath   string
	bucketNames  []string
}

// NewManager creates a new InfluxDB manager. backupPath receives gzip line
// protocol whenever the server is unreachable.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		cfg:         cfg,
		logger:      log,
		writers:     make(map[string]influxdb2_api.WriteAPI),
		backupPath:  backupPath,
		bucketNames: []string{cfg.Bucket, PerformanceBucket},
	}
}

// Connect establishes a connection to InfluxDB, falling back to the backup
// file when the ping fails.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.valid = false
		if m.backupWriter == nil {
			m.logger.Info().Str("backupPath", m.backupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %w", err)
			}
			m.backupFile = file
			m.backupWriter = gzip.NewWriter(file)
		}
		m.logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
		return nil
	}

	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.createWriters()
	m.valid = true
	m.logger.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	for _, bucket := range m.bucketNames {
		if _, err := m.client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.client.BucketsAPI().CreateBucketWithName(ctx, org, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			m.logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriters() {
	for _, bucket := range m.bucketNames {
		w := m.client.WriteAPI(m.cfg.Org, bucket)
		m.writers[bucket] = w

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, w.Errors())
	}
	m.logger.Debug().Int("buckets", len(m.bucketNames)).Msg("InfluxDB writers initialized")
}

// Valid reports whether points go to the server rather than the backup file.
func (m *Manager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		w, ok := m.writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	if m.backupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backupWriter.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteTick records one committed tick in the run bucket.
func (m *Manager) WriteTick(rec *core.TickRecord) error {
	return m.WritePoint(m.cfg.Bucket, TickPoint(rec))
}

// WriteSummary records a finished run in the run bucket.
func (m *Manager) WriteSummary(s *core.RunSummary) error {
	return m.WritePoint(m.cfg.Bucket, SummaryPoint(s))
}

// Close flushes pending writes and releases the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, w := range m.writers {
		w.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}
	if m.backupWriter != nil {
		errs = append(errs, m.backupWriter.Close())
		errs = append(errs, m.backupFile.Close())
		m.backupWriter = nil
		m.backupFile = nil
	}
	m.valid = false
	return errors.Join(errs...)
}

// TickPoint converts a tick record into a point tagged by owner.
func TickPoint(rec *core.TickRecord) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		MeasurementTick,
		map[string]string{"owner": rec.Owner},
		map[string]any{
			"seed":       rec.Seed,
			"score":      rec.Score,
			"experience": int(rec.Experience),
			"occupants":  rec.Occupants,
			"moves":      rec.Moves,
			"attacks":    rec.Attacks,
			"kills":      rec.Kills,
			"losses":     rec.Losses,
			"spawned":    rec.Spawned,
		},
		rec.Time,
	)
}

// SummaryPoint converts a run summary into a point tagged by owner and name.
func SummaryPoint(s *core.RunSummary) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		MeasurementRunSummary,
		map[string]string{"owner": s.Owner, "name": s.Name},
		map[string]any{
			"finalScore":   s.FinalScore,
			"bestScore":    s.BestScore,
			"newBest":      s.NewBest,
			"runsFinished": int(s.RunsFinished),
		},
		s.EndedAt,
	)
}
