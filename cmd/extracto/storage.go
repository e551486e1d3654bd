package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/OCAP2/extracto/internal/config"
	"github.com/OCAP2/extracto/internal/storage"
	"github.com/OCAP2/extracto/internal/storage/memory"
	pgstorage "github.com/OCAP2/extracto/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/extracto/internal/storage/sqlite"
	wsstorage "github.com/OCAP2/extracto/internal/storage/websocket"
)

func createStorageBackend(storageCfg config.StorageConfig, logsDir string, log zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		Logger.Info("Postgres storage backend selected", "host", storageCfg.Postgres.Host)
		return pgstorage.New(storageCfg.Postgres, storageCfg.FlushInterval, log), nil

	case "sqlite":
		dumpPath := ""
		if storageCfg.SQLite.Path == "" {
			// in-memory database, dumped to disk periodically
			dumpPath = filepath.Join(logsDir, fmt.Sprintf("%s_%s.db", ServiceName, SessionStartTime.Format("20060102_150405")))
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:          storageCfg.SQLite.Path,
			DumpPath:      dumpPath,
			DumpInterval:  storageCfg.SQLite.DumpInterval,
			FlushInterval: storageCfg.FlushInterval,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend selected", "path", storageCfg.SQLite.Path, "dumpPath", dumpPath)
		return backend, nil

	case "websocket":
		Logger.Info("WebSocket storage backend selected", "url", storageCfg.WebSocket.URL)
		return wsstorage.New(storageCfg.WebSocket, storageCfg.Memory, Logger), nil

	case "memory", "":
		Logger.Info("Memory storage backend selected", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}
