package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		service string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "extractologs",
			service: "extracto",
			want:    filepath.Join("extractologs", "extracto.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./extractologs",
			service: "extracto",
			want:    filepath.Join(".", "extractologs", "extracto.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "extracto"),
			service: "extracto",
			want:    filepath.Join("/var", "log", "extracto", "extracto.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.service, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}
