// Package postgres runs the GORM backend against a PostgreSQL server.
package postgres

import (
	"fmt"
	"time"

	"github.com/OCAP2/extracto/internal/config"
	"github.com/OCAP2/extracto/internal/database"
	gormstorage "github.com/OCAP2/extracto/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Backend is the GORM backend with a Postgres connection opened on Init.
type Backend struct {
	*gormstorage.Backend
	cfg           config.PostgresConfig
	flushInterval time.Duration
	log           zerolog.Logger
}

// New prepares the backend; no connection is made until Init.
func New(cfg config.PostgresConfig, flushInterval time.Duration, log zerolog.Logger) *Backend {
	return &Backend{cfg: cfg, flushInterval: flushInterval, log: log}
}

// Init connects, migrates and starts the history writer.
func (b *Backend) Init() error {
	db, err := database.GetPostgresDB(b.cfg, b.log)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Logger:        b.log,
		FlushInterval: b.flushInterval,
	})
	return b.Backend.Init()
}

// Close flushes and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	sqlDB, err := b.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
