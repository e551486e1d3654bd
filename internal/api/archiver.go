package api

import (
	"log/slog"
	"sync"

	"github.com/OCAP2/extracto/internal/storage"
	"github.com/OCAP2/extracto/pkg/core"
)

// Archiver uploads the export of every finished run in the background. It
// is a game sink: ticks are ignored.
type Archiver struct {
	client  *Client
	exports storage.Exporter
	logger  *slog.Logger

	wg sync.WaitGroup
}

func NewArchiver(client *Client, exports storage.Exporter, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{client: client, exports: exports, logger: logger}
}

func (a *Archiver) WriteTick(*core.TickRecord) error {
	return nil
}

// WriteSummary starts the upload of the latest export. It never blocks on
// the network.
func (a *Archiver) WriteSummary(s *core.RunSummary) error {
	path := a.exports.LastExportPath()
	if path == "" {
		return nil
	}
	summary := *s

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.client.Upload(path, summary); err != nil {
			a.logger.Error("Failed to upload run export", "path", path, "error", err)
			return
		}
		a.logger.Info("Run export uploaded", "path", path, "owner", summary.Owner)
	}()
	return nil
}

// Wait blocks until every started upload has finished.
func (a *Archiver) Wait() {
	a.wg.Wait()
}
