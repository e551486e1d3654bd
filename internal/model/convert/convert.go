// Package convert maps between the core game types and their GORM rows.
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/extracto/internal/codec"
	"github.com/OCAP2/extracto/internal/model"
	"github.com/OCAP2/extracto/pkg/core"
	"gorm.io/datatypes"
)

func PlayerToModel(p core.Player) model.Player {
	return model.Player{
		Owner:        p.Owner.String(),
		Name:         p.Name,
		RunsFinished: p.RunsFinished,
		BestScore:    p.BestScore,
		InRun:        p.InRun,
	}
}

func PlayerToCore(m model.Player) (core.Player, error) {
	owner, err := parseHexOwner(m.Owner)
	if err != nil {
		return core.Player{}, err
	}
	return core.Player{
		Owner:        owner,
		Name:         m.Name,
		RunsFinished: m.RunsFinished,
		BestScore:    m.BestScore,
		InRun:        m.InRun,
	}, nil
}

// RunToModel encodes the run layout and its JSON snapshot.
func RunToModel(r core.Run) (model.Run, error) {
	snapshot, err := json.Marshal(r)
	if err != nil {
		return model.Run{}, fmt.Errorf("marshal run snapshot: %w", err)
	}
	return model.Run{
		Owner:      r.Owner.String(),
		Score:      r.Score,
		Experience: r.Experience,
		Occupants:  r.Occupants(),
		Layout:     codec.EncodeRun(&r),
		Snapshot:   datatypes.JSON(snapshot),
	}, nil
}

// RunToCore decodes the stored layout; the JSON snapshot is ignored.
func RunToCore(m model.Run) (core.Run, error) {
	r, err := codec.DecodeRun(m.Layout)
	if err != nil {
		return core.Run{}, fmt.Errorf("decode run %s: %w", m.Owner, err)
	}
	return r, nil
}

func TickToModel(t core.TickRecord) model.TickHistory {
	return model.TickHistory{
		Owner:      t.Owner,
		Time:       t.Time,
		Seed:       t.Seed,
		Score:      t.Score,
		Experience: t.Experience,
		Occupants:  t.Occupants,
		Moves:      t.Moves,
		Attacks:    t.Attacks,
		Kills:      t.Kills,
		Losses:     t.Losses,
		Spawned:    t.Spawned,
	}
}

func TickToCore(m model.TickHistory) core.TickRecord {
	return core.TickRecord{
		Owner:      m.Owner,
		Seed:       m.Seed,
		Score:      m.Score,
		Experience: m.Experience,
		Occupants:  m.Occupants,
		Moves:      m.Moves,
		Attacks:    m.Attacks,
		Kills:      m.Kills,
		Losses:     m.Losses,
		Spawned:    m.Spawned,
		Time:       m.Time,
	}
}

func SummaryToModel(s core.RunSummary) model.RunSummary {
	return model.RunSummary{
		Owner:        s.Owner,
		Name:         s.Name,
		FinalScore:   s.FinalScore,
		BestScore:    s.BestScore,
		NewBest:      s.NewBest,
		RunsFinished: s.RunsFinished,
		EndedAt:      s.EndedAt,
	}
}

// parseHexOwner rejects anything but the 64 character hex form, so a
// corrupted row never turns into a name-derived identity.
func parseHexOwner(s string) (core.Owner, error) {
	var o core.Owner
	if len(s) != 2*len(o) {
		return o, fmt.Errorf("invalid owner %q", s)
	}
	return core.ParseOwner(s)
}
