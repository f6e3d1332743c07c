package store

import (
	"encoding/json"
	"os"

	"github.com/filippods/irrigazione5/internal/model"
	"gopkg.in/yaml.v3"
)

// LoadSettings loads the settings document, filling in any missing keys
// from the factory defaults and re-saving the upgraded document, per §4.1
// ("loaders must upgrade partial documents by filling defaults and
// re-saving").
func (s *Store) LoadSettings() model.Settings {
	var doc settingsDoc
	defaults := s.factoryDefaults()

	if !s.load(settingsFile, &doc) {
		s.SaveSettings(defaults)
		return defaults
	}

	upgraded, changed := withDefaults(doc, defaults)
	if changed {
		s.SaveSettings(upgraded)
	}
	return upgraded
}

// SaveSettings persists the settings document.
func (s *Store) SaveSettings(settings model.Settings) error {
	return s.save(settingsFile, settings, ProfileDurable)
}

// ResetSettings restores the factory defaults and persists them.
func (s *Store) ResetSettings() (model.Settings, error) {
	defaults := s.factoryDefaults()
	if err := s.SaveSettings(defaults); err != nil {
		return model.Settings{}, err
	}
	return defaults, nil
}

// settingsDoc is the on-disk shape settings are decoded into before
// defaulting; it's just model.Settings, named for readability at call sites.
type settingsDoc = model.Settings

func withDefaults(doc settingsDoc, defaults model.Settings) (model.Settings, bool) {
	changed := false
	if len(doc.Zones) == 0 {
		doc.Zones = defaults.Zones
		changed = true
	}
	if doc.MaxActiveZones == 0 {
		doc.MaxActiveZones = defaults.MaxActiveZones
		changed = true
	}
	if doc.SafetyRelay.Pin == 0 {
		doc.SafetyRelay = defaults.SafetyRelay
		changed = true
	}
	if doc.AP.SSID == "" {
		doc.AP = defaults.AP
		changed = true
	}
	if doc.MaxZoneDuration == 0 {
		doc.MaxZoneDuration = defaults.MaxZoneDuration
		changed = true
	}
	return doc, changed
}

// WithFactorySeed loads an optional YAML factory-seed file from path (§6.8):
// if present and well-formed, it replaces the hard-coded Go defaults as the
// source of truth for factory settings. It is a no-op if the file does not
// exist; a present-but-malformed file is logged and ignored.
func (s *Store) WithFactorySeed(path string) *Store {
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	// The seed uses the settings document's own snake_case keys, so it is
	// decoded generically and then mapped through model.Settings' JSON tags.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("malformed factory seed, ignoring")
		return s
	}
	var seed model.Settings
	asJSON, err := json.Marshal(raw)
	if err == nil {
		err = json.Unmarshal(asJSON, &seed)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("malformed factory seed, ignoring")
		return s
	}
	s.factorySeedValue = &seed
	return s
}

func (s *Store) factoryDefaults() model.Settings {
	if s.factorySeedValue != nil {
		return *s.factorySeedValue
	}
	return model.FactorySettings()
}

// LoadPrograms loads the programs document, defaulting to an empty map.
func (s *Store) LoadPrograms() model.Programs {
	doc := model.Programs{}
	if !s.load(programsFile, &doc) || doc == nil {
		doc = model.Programs{}
	}
	return doc
}

// SavePrograms persists the programs document.
func (s *Store) SavePrograms(programs model.Programs) error {
	return s.save(programsFile, programs, ProfileDurable)
}

// LoadRunState loads the run-state document, defaulting to idle.
func (s *Store) LoadRunState() model.RunState {
	var doc model.RunState
	if !s.load(runStateFile, &doc) {
		return model.IdleRunState()
	}
	return doc
}

// SaveRunState persists the run-state document. run_state is cheap to
// regenerate (it's reset to idle on every boot regardless), so it uses the
// fast profile.
func (s *Store) SaveRunState(rs model.RunState) error {
	return s.save(runStateFile, rs, ProfileFast)
}

// LoadSystemLog loads the log ring buffer, defaulting to empty.
func (s *Store) LoadSystemLog() []model.LogEntry {
	var doc []model.LogEntry
	if !s.load(systemLogFile, &doc) || doc == nil {
		doc = []model.LogEntry{}
	}
	return doc
}

// SaveSystemLog persists the log ring buffer. Rewritten wholesale on every
// append like run_state, so it uses the fast profile: a torn write here
// costs a handful of recent log lines, not operational state.
func (s *Store) SaveSystemLog(entries []model.LogEntry) error {
	return s.save(systemLogFile, entries, ProfileFast)
}

// LoadWifiScan loads the last WiFi scan's results, defaulting to empty.
func (s *Store) LoadWifiScan() []model.WifiScanResult {
	var doc []model.WifiScanResult
	if !s.load(wifiScanFile, &doc) || doc == nil {
		doc = []model.WifiScanResult{}
	}
	return doc
}

// SaveWifiScan persists the most recent WiFi scan's results. Entirely
// transient (§3), so it uses the fast profile.
func (s *Store) SaveWifiScan(results []model.WifiScanResult) error {
	return s.save(wifiScanFile, results, ProfileFast)
}
