package connectivity

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/filippods/irrigazione5/internal/model"
	"github.com/google/uuid"
)

// ShellRadio drives the host's NetworkManager via nmcli, in the teacher's
// shell-out-to-a-system-tool idiom (the same exec.Command pattern used for
// restart/reboot). It is the production Radio on the target SBC; tests use
// a scripted fake instead.
type ShellRadio struct {
	interfaceName string
}

// NewShellRadio constructs a ShellRadio bound to the given WiFi interface
// (e.g. "wlan0").
func NewShellRadio(interfaceName string) *ShellRadio {
	return &ShellRadio{interfaceName: interfaceName}
}

// ConnectStation associates to creds.SSID via `nmcli device wifi connect`.
func (r *ShellRadio) ConnectStation(creds model.WifiCredentials) error {
	args := []string{"device", "wifi", "connect", creds.SSID, "ifname", r.interfaceName}
	if creds.Password != "" {
		args = append(args, "password", creds.Password)
	}
	out, err := exec.Command("nmcli", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli connect: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// StartAP brings up a local access point via nmcli's hotspot mode.
func (r *ShellRadio) StartAP(creds model.WifiCredentials) error {
	args := []string{
		"device", "wifi", "hotspot",
		"ifname", r.interfaceName,
		"ssid", creds.SSID,
	}
	if creds.Password != "" {
		args = append(args, "password", creds.Password)
	}
	out, err := exec.Command("nmcli", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli hotspot: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Scan lists nearby access points via `nmcli -t -f SSID,SIGNAL device wifi
// list`, satisfying the optional Scanner interface.
func (r *ShellRadio) Scan() ([]model.WifiScanResult, error) {
	out, err := exec.Command("nmcli", "-t", "-f", "SSID,SIGNAL", "device", "wifi", "list", "ifname", r.interfaceName).Output()
	if err != nil {
		return nil, fmt.Errorf("nmcli scan: %w", err)
	}

	var results []model.WifiScanResult
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(line, ":")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		signal, _ := strconv.Atoi(fields[len(fields)-1])
		ssid := strings.Join(fields[:len(fields)-1], ":")
		results = append(results, model.WifiScanResult{
			ID:        uuid.NewString(),
			SSID:      ssid,
			SignalDBM: signal,
		})
	}
	return results, nil
}
