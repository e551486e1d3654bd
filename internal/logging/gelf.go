package logging

import (
	"fmt"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// GelfHandler ships records to a Graylog GELF UDP input. Each record is
// rendered as a logfmt line; Graylog takes the whole line as the short
// message.
type GelfHandler struct {
	slog.Handler
	writer *gelf.Writer
}

// NewGelfHandler dials addr (host:port) and returns a handler writing at the
// given level.
func NewGelfHandler(addr, level string) (*GelfHandler, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create GELF writer for %s: %w", addr, err)
	}
	w.Facility = "extracto"

	return &GelfHandler{
		Handler: slog.NewTextHandler(w, HandlerOptions(level)),
		writer:  w,
	}, nil
}

// Close releases the UDP connection.
func (h *GelfHandler) Close() error {
	return h.writer.Close()
}
