package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/extracto/internal/config"
	"github.com/OCAP2/extracto/internal/storage"
	"github.com/OCAP2/extracto/pkg/core"
	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storage.Backend  = (*Backend)(nil)
	_ storage.Exporter = (*Backend)(nil)
)

var alice = core.OwnerFromName("alice")

func TestLoad_NotFound(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())
	defer b.Close()

	_, err := b.LoadPlayer(alice)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = b.LoadRun(alice)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCommit_StoresCopies(t *testing.T) {
	b := New(config.MemoryConfig{})

	p := core.Player{Owner: alice, Name: "alice", InRun: true}
	r := core.Run{Owner: alice, Score: 5}
	require.NoError(t, b.Commit(&p, &r))

	r.Score = 99 // caller's copy is not shared
	got, err := b.LoadRun(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Score)

	gotP, err := b.LoadPlayer(alice)
	require.NoError(t, err)
	assert.Equal(t, p, gotP)

	// nil leaves the record untouched
	require.NoError(t, b.Commit(nil, &core.Run{Owner: alice, Score: 7}))
	gotP, err = b.LoadPlayer(alice)
	require.NoError(t, err)
	assert.True(t, gotP.InRun)
}

func TestEndRun_NoOutputDir(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.RecordTick(&core.TickRecord{Owner: alice.String(), Seed: 1}))
	assert.Len(t, b.History(alice), 1)

	require.NoError(t, b.EndRun(&core.RunSummary{Owner: alice.String(), FinalScore: 3}))
	assert.Empty(t, b.History(alice))
	assert.Empty(t, b.LastExportPath())
	assert.Len(t, b.Summaries(), 1)
}

func ticks() []core.TickRecord {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return []core.TickRecord{
		{Owner: alice.String(), Seed: 11, Score: 1, Occupants: 1, Spawned: true, Time: at},
		{Owner: alice.String(), Seed: 12, Score: 2, Occupants: 2, Kills: 1, Time: at.Add(time.Second)},
	}
}

func summary() core.RunSummary {
	return core.RunSummary{
		Owner: alice.String(), Name: "alice smith", FinalScore: 2, BestScore: 2, NewBest: true,
		RunsFinished: 1, EndedAt: time.Date(2024, 6, 1, 12, 1, 0, 0, time.UTC),
	}
}

func TestEndRun_ExportsJSONAndCSV(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	for _, rec := range ticks() {
		rec := rec
		require.NoError(t, b.RecordTick(&rec))
	}

	s := summary()
	require.NoError(t, b.EndRun(&s))

	path := b.LastExportPath()
	assert.Equal(t, filepath.Join(dir, "alice_smith_"+alice.Short()+"_20240601_120100.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc RunExport
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, s, doc.Summary)
	assert.Len(t, doc.Ticks, 2)

	csvFile, err := os.Open(strings.TrimSuffix(path, ".json") + ".csv")
	require.NoError(t, err)
	defer csvFile.Close()
	var rows []core.TickRecord
	require.NoError(t, gocsv.UnmarshalFile(csvFile, &rows))
	assert.Equal(t, ticks(), rows)
}

func TestEndRun_GzipExport(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})

	s := summary()
	require.NoError(t, b.EndRun(&s))

	path := b.LastExportPath()
	require.True(t, strings.HasSuffix(path, ".json.gz"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var doc RunExport
	require.NoError(t, json.NewDecoder(gz).Decode(&doc))
	assert.Equal(t, uint64(2), doc.Summary.FinalScore)
	assert.NotNil(t, doc.Ticks)
}

func TestExportBaseName(t *testing.T) {
	s := core.RunSummary{Owner: "abcdef0123", Name: "a:b/c", EndedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	assert.Equal(t, "a_b_c_abcdef01_20240102_030405", exportBaseName(s))

	s.Name = ""
	assert.Equal(t, "run_abcdef01_20240102_030405", exportBaseName(s))
}
