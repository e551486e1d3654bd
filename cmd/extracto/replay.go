package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/OCAP2/extracto/internal/replay"
)

// runReplay plays each script and prints its final state as YAML documents.
func runReplay(paths []string, out io.Writer) error {
	if len(paths) == 0 {
		return fmt.Errorf("replay: no script given")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()

	for _, path := range paths {
		script, err := replay.Load(path)
		if err != nil {
			return err
		}
		res, err := replay.Run(script)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("%s: encode result: %w", path, err)
		}
	}
	return nil
}
