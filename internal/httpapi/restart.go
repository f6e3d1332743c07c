package httpapi

import "os/exec"

// runReboot asks the host operating system to reboot, in the teacher's
// shell-out-to-systemctl/reboot idiom for the embedded device's own
// lifecycle commands.
func runReboot() error {
	return exec.Command("sudo", "reboot").Start()
}
