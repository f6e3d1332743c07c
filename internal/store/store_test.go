package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/filippods/irrigazione5/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(Config{DataDir: dir, Log: zerolog.Nop()})
}

func TestLoadSettings_CreatesFactoryDefaultsWhenMissing(t *testing.T) {
	s := newTestStore(t)

	got := s.LoadSettings()

	want := model.FactorySettings()
	assert.Equal(t, want, got)

	// The document should now exist on disk.
	data, err := os.ReadFile(filepath.Join(s.dataDir, settingsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "IrrigationSystem")
}

func TestLoadSettings_CorruptDocumentReplacedWithDefault(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.dataDir, settingsFile), []byte("{not json"), 0o644))

	got := s.LoadSettings()
	assert.Equal(t, model.FactorySettings(), got)
}

func TestLoadSettings_UpgradesPartialDocument(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.dataDir, settingsFile), []byte(`{"client_enabled": true}`), 0o644))

	got := s.LoadSettings()
	assert.True(t, got.ClientEnabled)
	assert.Equal(t, model.FactorySettings().Zones, got.Zones)
	assert.Equal(t, 180, got.MaxZoneDuration)

	// Re-loading should now see the upgraded, persisted document.
	got2 := s.LoadSettings()
	assert.Equal(t, got, got2)
}

func TestSaveLoadRoundTrip_Programs(t *testing.T) {
	s := newTestStore(t)
	programs := model.Programs{
		"1": {ID: "1", Name: "A", Months: []int{6}, Recurrence: model.RecurrenceDaily, ActivationTime: "06:00",
			Steps: []model.Step{{ZoneID: 0, DurationMinutes: 5}}},
	}
	require.NoError(t, s.SavePrograms(programs))
	assert.Equal(t, programs, s.LoadPrograms())
}

func TestSaveLoadRoundTrip_RunState(t *testing.T) {
	s := newTestStore(t)
	rs := model.RunState{ProgramRunning: true, CurrentProgramID: "3"}
	require.NoError(t, s.SaveRunState(rs))
	assert.Equal(t, rs, s.LoadRunState())
}

func TestLoadRunState_DefaultsToIdle(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, model.IdleRunState(), s.LoadRunState())
}

func TestLoadPrograms_DefaultsToEmptyMap(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, model.Programs{}, s.LoadPrograms())
}

func TestSave_CreatesDirectoryOnFirstWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s := New(Config{DataDir: dir, Log: zerolog.Nop()})

	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, s.SaveSettings(model.FactorySettings()))

	_, err = os.Stat(dir)
	require.NoError(t, err)
}

// TestRoundTrip_LoadDefaultSaveLoadDefault is invariant 10 from the design's
// testable properties: save(load_default()) == load_default() for every
// persisted document.
func TestRoundTrip_LoadDefaultSaveLoadDefault(t *testing.T) {
	s := newTestStore(t)

	settings := s.LoadSettings()
	require.NoError(t, s.SaveSettings(settings))
	assert.Equal(t, settings, s.LoadSettings())

	programs := s.LoadPrograms()
	require.NoError(t, s.SavePrograms(programs))
	assert.Equal(t, programs, s.LoadPrograms())

	runState := s.LoadRunState()
	require.NoError(t, s.SaveRunState(runState))
	assert.Equal(t, runState, s.LoadRunState())
}

func TestWithFactorySeed_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "factory-settings.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte("max_active_zones: 7\nmax_zone_duration: 60\n"), 0o644))

	s := New(Config{DataDir: filepath.Join(dir, "data"), Log: zerolog.Nop()}).WithFactorySeed(seedPath)

	got := s.LoadSettings()
	assert.Equal(t, 7, got.MaxActiveZones)
	assert.Equal(t, 60, got.MaxZoneDuration)
}

func TestWithFactorySeed_MissingFileIsNoop(t *testing.T) {
	s := newTestStore(t).WithFactorySeed(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Equal(t, model.FactorySettings(), s.LoadSettings())
}
