// Package replay runs a scripted run against the engine without storage or
// scheduling. The same script always produces the same final state.
package replay

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/OCAP2/extracto/internal/engine"
	"github.com/OCAP2/extracto/pkg/core"
)

var ErrSeedsExhausted = errors.New("replay: seed list exhausted")

// Script describes a run. Seeds, when given, are consumed one per tick or
// upgrade; otherwise seeds count up from SeedStart+1.
type Script struct {
	Name      string   `yaml:"name"`
	Owner     string   `yaml:"owner"`
	SeedStart uint64   `yaml:"seedStart"`
	Seeds     []uint64 `yaml:"seeds"`
	Steps     []Step   `yaml:"steps"`
}

// Step is exactly one of Tick, Upgrade or Finish.
type Step struct {
	Tick    int      `yaml:"tick,omitempty"`
	Upgrade *Upgrade `yaml:"upgrade,omitempty"`
	Finish  bool     `yaml:"finish,omitempty"`
}

type Upgrade struct {
	Offer int `yaml:"offer"`
	Slot  int `yaml:"slot"`
}

// Result is the state after the last step.
type Result struct {
	Player core.Player       `json:"player" yaml:"player"`
	Run    core.Run          `json:"run" yaml:"run"`
	Ticks  int               `json:"ticks" yaml:"ticks"`
	Kills  int               `json:"kills" yaml:"kills"`
	Losses int               `json:"losses" yaml:"losses"`
	Spawns int               `json:"spawns" yaml:"spawns"`
	Deltas []core.ScoreDelta `json:"deltas,omitempty" yaml:"deltas,omitempty"`
}

// Parse decodes and validates a YAML script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("replay: parse script: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return Parse(data)
}

func (s *Script) validate() error {
	if s.Name == "" && s.Owner == "" {
		return errors.New("replay: script needs a name or an owner")
	}
	for i, st := range s.Steps {
		set := 0
		if st.Tick != 0 {
			set++
		}
		if st.Upgrade != nil {
			set++
		}
		if st.Finish {
			set++
		}
		if set != 1 {
			return fmt.Errorf("replay: step %d must set exactly one of tick, upgrade, finish", i)
		}
		if st.Tick < 0 {
			return fmt.Errorf("replay: step %d: negative tick count", i)
		}
	}
	return nil
}

// owner resolves the script's identity: an explicit hex owner wins over
// the name-derived one.
func (s *Script) owner() (core.Owner, error) {
	if s.Owner != "" {
		return core.ParseOwner(s.Owner)
	}
	return core.OwnerFromName(s.Name), nil
}

type seeds struct {
	list []uint64
	next uint64
	used int
}

func (s *seeds) take() (uint64, error) {
	if len(s.list) > 0 {
		if s.used >= len(s.list) {
			return 0, ErrSeedsExhausted
		}
		v := s.list[s.used]
		s.used++
		return v, nil
	}
	s.next++
	return s.next, nil
}

// Run plays the script from a fresh StartRun. A finish step folds the score
// into the profile and starts the next run.
func Run(s *Script) (Result, error) {
	owner, err := s.owner()
	if err != nil {
		return Result{}, fmt.Errorf("replay: owner: %w", err)
	}

	res := Result{
		Player: core.Player{Owner: owner, Name: s.Name, InRun: true},
		Run:    engine.StartRun(owner),
	}
	src := &seeds{list: s.Seeds, next: s.SeedStart}

	for i, st := range s.Steps {
		switch {
		case st.Tick > 0:
			for n := 0; n < st.Tick; n++ {
				v, err := src.take()
				if err != nil {
					return res, fmt.Errorf("step %d: %w", i, err)
				}
				next, out, err := engine.AdvanceTick(res.Run, v)
				if err != nil {
					return res, fmt.Errorf("step %d tick %d: %w", i, n, err)
				}
				res.Run = next
				res.Ticks++
				res.Kills += out.Kills
				res.Losses += out.Losses
				if out.Spawned {
					res.Spawns++
				}
			}

		case st.Upgrade != nil:
			v, err := src.take()
			if err != nil {
				return res, fmt.Errorf("step %d: %w", i, err)
			}
			next, err := engine.ApplyUpgrade(res.Run, v, st.Upgrade.Offer, st.Upgrade.Slot)
			if err != nil {
				return res, fmt.Errorf("step %d: %w", i, err)
			}
			res.Run = next

		case st.Finish:
			_, player, delta, err := engine.FinishRun(res.Run, res.Player)
			if err != nil {
				return res, fmt.Errorf("step %d: %w", i, err)
			}
			res.Deltas = append(res.Deltas, delta)
			res.Player = player
			res.Player.InRun = true
			res.Run = engine.StartRun(owner)
		}
	}
	return res, nil
}
