package sqlitestorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/extracto/internal/database"
	"github.com/OCAP2/extracto/internal/storage"
	"github.com/OCAP2/extracto/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func TestBackend_DumpOnClose(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "runs.db")
	b, err := New(Config{DumpPath: dump, DumpInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	owner := core.OwnerFromName("alice")
	p := core.Player{Owner: owner, Name: "alice"}
	r := core.Run{Owner: owner, Score: 12}
	require.NoError(t, b.Commit(&p, &r))
	require.NoError(t, b.RecordTick(&core.TickRecord{Owner: owner.String(), Seed: 1, Time: time.Now()}))
	require.NoError(t, b.Close())

	disk, err := database.GetSqliteDB(dump, zerolog.Nop())
	require.NoError(t, err)
	reopened, err := New(Config{Path: dump}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, reopened.Init())
	defer reopened.Close()

	got, err := reopened.LoadRun(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), got.Score)

	var ticks int64
	require.NoError(t, disk.Table("tick_history").Count(&ticks).Error)
	assert.Equal(t, int64(1), ticks)
}

func TestBackend_PeriodicDump(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "periodic.db")
	b, err := New(Config{DumpPath: dump, DumpInterval: 20 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Eventually(t, func() bool {
		return fileExists(dump)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestBackend_FileWithoutDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "direct.db")
	b, err := New(Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
	assert.True(t, fileExists(path))
}
