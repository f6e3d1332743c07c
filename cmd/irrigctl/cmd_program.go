package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProgramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "program",
		Short: "Run or stop a stored program",
	}
	cmd.AddCommand(newProgramRunCmd(), newProgramStopCmd())
	return cmd
}

func newProgramRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run a stored program now, as a manual activation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"id": args[0]}
			if err := postJSON("/start_program", body); err != nil {
				return err
			}
			fmt.Printf("program %s started\n", args[0])
			return nil
		},
	}
}

func newProgramStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Cancel whatever program is currently running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := postJSON("/stop_program", nil); err != nil {
				return err
			}
			fmt.Println("stop requested")
			return nil
		},
	}
}
