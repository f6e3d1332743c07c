// Package store implements the persistent document store: three logical
// documents (settings, programs, run_state) held as JSON blobs on a small
// flash filesystem, with whole-document atomic replace.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/filippods/irrigazione5/internal/model"
	"github.com/rs/zerolog"
)

// Profile selects the durability strategy used when saving a document,
// generalizing the teacher's ledger/cache database profiles to plain files:
// Durable fsyncs the temp file before the atomic rename (settings,
// programs); Fast skips the fsync for documents that are cheap to
// regenerate if torn (run_state, transient scan caches).
type Profile int

const (
	// ProfileDurable fsyncs before renaming into place.
	ProfileDurable Profile = iota
	// ProfileFast skips the fsync for low-stakes, frequently-rewritten
	// documents.
	ProfileFast
)

// Config configures a Store.
type Config struct {
	// DataDir is the directory documents live under (created on first
	// write if missing).
	DataDir string
	Log     zerolog.Logger
}

const (
	settingsFile  = "user_settings.json"
	programsFile  = "program.json"
	runStateFile  = "program_state.json"
	systemLogFile = "system_log.json"
	wifiScanFile  = "wifi_scan.json"
)

// Store is the key->document blob persistence layer backing settings,
// programs and run_state.
type Store struct {
	dataDir string
	log     zerolog.Logger

	// factorySeedValue holds an optional first-boot provisioning override
	// loaded via WithFactorySeed (§6.8).
	factorySeedValue *model.Settings
}

// New creates a Store rooted at cfg.DataDir. The directory is not created
// until the first write, per §4.1.
func New(cfg Config) *Store {
	return &Store{
		dataDir: cfg.DataDir,
		log:     cfg.Log.With().Str("component", "store").Logger(),
	}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// load reads the document at name into dst. If the file is absent, corrupt,
// or unreadable, ok is false so the caller can fall back to its typed
// default. A missing file is not logged; a corrupt or unreadable one logs a
// warning on every call. load does not rewrite the file: LoadSettings saves
// the defaults over it, while the other loaders leave a corrupt file in
// place, so it is reported again on each later load.
func (s *Store) load(name string, dst interface{}) (ok bool) {
	p := s.path(name)
	data, err := os.ReadFile(p)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("file", name).Msg("failed to read document")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn().Err(err).Str("file", name).Msg("corrupt document, replacing with default")
		return false
	}
	return true
}

// save writes doc as name using a temp-file-then-rename replace so readers
// never observe a torn write.
func (s *Store) save(name string, doc interface{}, profile Profile) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	target := s.path(name)
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file for %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file for %s: %w", name, err)
	}
	if profile == ProfileDurable {
		if err := f.Sync(); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("fsync temp file for %s: %w", name, err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file for %s: %w", name, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place for %s: %w", name, err)
	}
	return nil
}
