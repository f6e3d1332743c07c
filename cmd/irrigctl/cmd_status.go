package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type zoneStatus struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Active           bool   `json:"active"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

type runState struct {
	ProgramRunning   bool   `json:"program_running"`
	CurrentProgramID string `json:"current_program_id,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show zone and program status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var zones []zoneStatus
			if err := getJSON("/get_zones_status", &zones); err != nil {
				return err
			}
			var rs runState
			if err := getJSON("/get_program_state", &rs); err != nil {
				return err
			}

			for _, z := range zones {
				state := "idle"
				if z.Active {
					state = fmt.Sprintf("active, %ds remaining", z.RemainingSeconds)
				}
				fmt.Printf("zone %d (%s): %s\n", z.ID, z.Name, state)
			}

			if rs.ProgramRunning {
				fmt.Printf("program %s is running\n", rs.CurrentProgramID)
			} else {
				fmt.Println("no program running")
			}
			return nil
		},
	}
}
