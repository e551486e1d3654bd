package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/OCAP2/extracto/pkg/core"
	"github.com/gocarina/gocsv"
)

// RunExport is the root JSON document written per finished run.
type RunExport struct {
	Summary core.RunSummary   `json:"summary"`
	Ticks   []core.TickRecord `json:"ticks"`
}

// exportBaseName builds "<name>_<owner8>_<time>" with path-hostile
// characters replaced.
func exportBaseName(s core.RunSummary) string {
	name := s.Name
	if name == "" {
		name = "run"
	}
	name = strings.NewReplacer(" ", "_", ":", "_", "/", "_", `\`, "_").Replace(name)
	owner := s.Owner
	if len(owner) > 8 {
		owner = owner[:8]
	}
	return fmt.Sprintf("%s_%s_%s", name, owner, s.EndedAt.UTC().Format("20060102_150405"))
}

// export writes the JSON document (gzipped when configured) and a CSV of
// the tick history next to it. It returns the JSON path.
func (b *Backend) export(s core.RunSummary, ticks []core.TickRecord) (string, error) {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := filepath.Join(b.cfg.OutputDir, exportBaseName(s))
	doc := RunExport{Summary: s, Ticks: ticks}
	if doc.Ticks == nil {
		doc.Ticks = []core.TickRecord{}
	}

	jsonPath := base + ".json"
	if b.cfg.CompressOutput {
		jsonPath += ".gz"
		if err := writeGzipJSON(jsonPath, doc); err != nil {
			return "", err
		}
	} else {
		if err := writeJSON(jsonPath, doc); err != nil {
			return "", err
		}
	}

	if err := writeCSV(base+".csv", ticks); err != nil {
		return "", err
	}
	return jsonPath, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()
	return encodeJSON(f, v)
}

func writeGzipJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := encodeJSON(gz, v); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

func encodeJSON(w io.Writer, v any) error {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeCSV(path string, ticks []core.TickRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if len(ticks) == 0 {
		// gocsv writes no header for an empty slice
		return nil
	}
	if err := gocsv.Marshal(ticks, f); err != nil {
		return fmt.Errorf("failed to write tick CSV: %w", err)
	}
	return nil
}
