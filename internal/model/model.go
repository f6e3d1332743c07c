// Package model holds the persisted and in-memory data shapes shared across
// the irrigation kernel: zone configuration, programs, settings and run
// state.
package model

// Zone is the static, reboot-persistent configuration of one valve.
type Zone struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Pin     int    `json:"pin"`
	Visible bool   `json:"-"`
	// Status mirrors the persisted "show"/"hide" string so round-tripping a
	// settings document preserves the exact field the original UI expects.
	Status string `json:"status"`
}

// ShowZone / HideZone are the two legal values of Zone.Status.
const (
	ShowZone = "show"
	HideZone = "hide"
)

// IsVisible reports whether the zone should appear in status listings.
func (z Zone) IsVisible() bool { return z.Status != HideZone }

// WifiCredentials is a SSID/password pair, used for both STA and AP config.
type WifiCredentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// SafetyRelay is the configuration of the single master relay in series with
// every zone.
type SafetyRelay struct {
	Pin int `json:"pin"`
}

// Settings is the full settings document (§3, Settings document).
type Settings struct {
	ClientEnabled            bool            `json:"client_enabled"`
	Wifi                     WifiCredentials `json:"wifi"`
	AP                       WifiCredentials `json:"ap"`
	Zones                    []Zone          `json:"zones"`
	MaxActiveZones           int             `json:"max_active_zones"`
	ActivationDelay          int             `json:"activation_delay"`
	SafetyRelay              SafetyRelay     `json:"safety_relay"`
	AutomaticProgramsEnabled bool            `json:"automatic_programs_enabled"`
	MaxZoneDuration          int             `json:"max_zone_duration"`
}

// ZoneByID returns the configured zone with the given id, or false if none
// matches.
func (s Settings) ZoneByID(id int) (Zone, bool) {
	for _, z := range s.Zones {
		if z.ID == id {
			return z, true
		}
	}
	return Zone{}, false
}

// FactorySettings are the out-of-box defaults, ported 1:1 from
// original_source/settings_manager.py's FACTORY_SETTINGS.
func FactorySettings() Settings {
	zoneNames := []string{"Zone 1", "Zone 2", "Zone 3", "Zone 4", "Zone 5", "Zone 6", "Zone 7", "Zone 8"}
	zones := make([]Zone, 0, len(zoneNames))
	for i, name := range zoneNames {
		zones = append(zones, Zone{
			ID:     i,
			Name:   name,
			Pin:    14 + i,
			Status: ShowZone,
		})
	}
	return Settings{
		ClientEnabled:            false,
		Wifi:                     WifiCredentials{SSID: "", Password: ""},
		AP:                       WifiCredentials{SSID: "IrrigationSystem", Password: "12345678"},
		Zones:                    zones,
		MaxActiveZones:           3,
		ActivationDelay:          5,
		SafetyRelay:              SafetyRelay{Pin: 13},
		AutomaticProgramsEnabled: false,
		MaxZoneDuration:          180,
	}
}

// Step is a single (zone, duration) element of a Program.
type Step struct {
	ZoneID          int `json:"zone_id"`
	DurationMinutes int `json:"duration_minutes"`
}

// Recurrence is a program's firing cadence.
type Recurrence string

const (
	RecurrenceDaily         Recurrence = "daily"
	RecurrenceEveryOtherDay Recurrence = "every_other_day"
	RecurrenceCustom        Recurrence = "custom"
)

// Program is a stored irrigation plan (§3, Program).
type Program struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Months         []int      `json:"months"` // 1..12, canonical internal form
	Recurrence     Recurrence `json:"recurrence"`
	IntervalDays   int        `json:"interval_days,omitempty"`
	ActivationTime string     `json:"activation_time"` // "HH:MM"
	Steps          []Step     `json:"steps"`
	LastRunDate    string     `json:"last_run_date,omitempty"`
}

// HasMonth reports whether m (1..12) is one of the program's firing months.
func (p Program) HasMonth(m int) bool {
	for _, pm := range p.Months {
		if pm == m {
			return true
		}
	}
	return false
}

// MonthSet returns the program's months as a set, for conflict checks.
func (p Program) MonthSet() map[int]struct{} {
	set := make(map[int]struct{}, len(p.Months))
	for _, m := range p.Months {
		set[m] = struct{}{}
	}
	return set
}

// Programs is the persisted program document: a map keyed by stringified id.
type Programs map[string]Program

// RunState is the persisted run-state document (§3, Run state document).
type RunState struct {
	ProgramRunning   bool   `json:"program_running"`
	CurrentProgramID string `json:"current_program_id,omitempty"`
}

// IdleRunState is the always-idle state written at boot.
func IdleRunState() RunState {
	return RunState{ProgramRunning: false, CurrentProgramID: ""}
}

// ActiveZone is the in-RAM record of an energised zone. It exists only while
// the zone's GPIO is driven active.
type ActiveZone struct {
	ZoneID          int
	StartUnixSec    int64
	DurationMinutes int
	// CancelTimer, when non-nil, cancels the auto-stop timer goroutine for
	// this zone.
	CancelTimer func()
}

// WifiScanResult is one entry of the transient wifi_scan.json document (§6):
// a single access point seen during the last WiFi scan.
type WifiScanResult struct {
	ID        string `json:"id"`
	SSID      string `json:"ssid"`
	SignalDBM int    `json:"signal_dbm"`
}

// LogEntry is one record of the system_log.json ring buffer (§6).
type LogEntry struct {
	ID      string `json:"id"`
	Date    string `json:"date"` // YYYY-MM-DD, local
	Time    string `json:"time"` // HH:MM:SS, local
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ZoneStatus is the status() projection returned to callers (§4.3).
type ZoneStatus struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Active           bool   `json:"active"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}
