package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newZoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zone",
		Short: "Start or stop a single zone",
	}
	cmd.AddCommand(newZoneStartCmd(), newZoneStopCmd())
	return cmd
}

func newZoneStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id> <minutes>",
		Short: "Start one zone for the given number of minutes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			zoneID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid zone id %q", args[0])
			}
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid duration %q", args[1])
			}

			body := map[string]int{"zone_id": zoneID, "duration_minutes": minutes}
			if err := postJSON("/start_zone", body); err != nil {
				return err
			}
			fmt.Printf("zone %d started for %d minutes\n", zoneID, minutes)
			return nil
		},
	}
}

func newZoneStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop one zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			zoneID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid zone id %q", args[0])
			}

			body := map[string]int{"zone_id": zoneID}
			if err := postJSON("/stop_zone", body); err != nil {
				return err
			}
			fmt.Printf("zone %d stopped\n", zoneID)
			return nil
		},
	}
}
