package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionRoundTrip(t *testing.T) {
	db := newTestDB(t)

	s := &Session{
		Label:       "lab-3",
		DeviceLabel: "board-07",
		Profile:     "st_nucleo_l1",
		Target:      "board/st_nucleo_l1.cfg",
		Interface:   "interface/stlink.cfg",
		ProbeSerial: "0ABC",
		SRAMBase:    0x20000000,
		SRAMSize:    0x14000,
	}
	require.NoError(t, db.InsertSession(s))
	require.NotEmpty(t, s.SessionID, "InsertSession should assign an ID")
	require.NotZero(t, s.CreatedAt)

	got, err := db.GetSession(s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, s.Label, got.Label)
	assert.Equal(t, uint32(0x20000000), got.SRAMBase)
	assert.Equal(t, "openocd", got.Source, "source defaults to openocd")

	require.NoError(t, db.UpdateSessionRounds(s.SessionID, 16))
	got, err = db.GetSession(s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 16, got.Rounds)

	sessions, err := db.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	_, err = db.GetSession("missing")
	assert.Error(t, err)
}

func TestReadoutRoundTrip(t *testing.T) {
	db := newTestDB(t)

	s := &Session{Profile: "st_nucleo_l1"}
	require.NoError(t, db.InsertSession(s))

	for round := 0; round < 3; round++ {
		require.NoError(t, db.InsertReadout(&Readout{
			SessionID: s.SessionID,
			Round:     round,
			Path:      "readouts/r.bin",
			SizeBytes: 0x14000,
			SHA256:    "abc",
		}))
	}

	readouts, err := db.ListReadouts(s.SessionID)
	require.NoError(t, err)
	require.Len(t, readouts, 3)
	assert.Equal(t, 0, readouts[0].Round)
	assert.Equal(t, 2, readouts[2].Round)
	assert.Equal(t, int64(0x14000), readouts[0].SizeBytes)
}

func TestResultRoundTrip(t *testing.T) {
	db := newTestDB(t)

	s := &Session{}
	require.NoError(t, db.InsertSession(s))

	require.NoError(t, db.InsertResult(&AnalysisResult{
		SessionID: s.SessionID,
		TestName:  "frequency",
		PValue:    0.42,
		Passed:    true,
	}))
	require.NoError(t, db.InsertResult(&AnalysisResult{
		SessionID: s.SessionID,
		ReadoutID: "some-readout",
		TestName:  "runs",
		PValue:    0.003,
		Passed:    false,
		Detail:    "below alpha",
	}))

	results, err := db.ListResults(s.SessionID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Passed)
	assert.Equal(t, "", results[0].ReadoutID)
	assert.False(t, results[1].Passed)
	assert.Equal(t, "some-readout", results[1].ReadoutID)
}

func TestMigrateVersion(t *testing.T) {
	db := newTestDB(t)

	migrations, err := MigrationsFS()
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestMigrateForce(t *testing.T) {
	db := newTestDB(t)

	migrations, err := MigrationsFS()
	require.NoError(t, err)

	// pin the schema version without running migrations, as the dirty-state
	// recovery path does
	require.NoError(t, db.MigrateForce(migrations, 1))

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.False(t, dirty, "force clears the dirty flag")
	assert.Equal(t, uint(1), version)
}
