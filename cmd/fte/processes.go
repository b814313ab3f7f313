package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fte-hq/fte-connectors/internal/supervisor"
)

const defaultProcessFile = "deploy/processes.yaml"

var processesCmd = &cobra.Command{
	Use:   "processes",
	Short: "Process supervision file tools",
}

var processesCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a process supervision file and print its apps",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultProcessFile
		if len(args) == 1 {
			path = args[0]
		}

		eco, err := supervisor.Load(path)
		if err != nil {
			return err
		}
		if err := eco.WriteSummary(cmd.OutOrStdout()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s: %d apps, %d deploy targets\n", path, len(eco.Apps), len(eco.Deploy))
		return nil
	},
}

func init() {
	processesCmd.AddCommand(processesCheckCmd)
}
