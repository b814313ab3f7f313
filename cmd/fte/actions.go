package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fte-hq/fte-connectors/internal/actions"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Inspect action records",
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List action records waiting for follow-up",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		summaries, err := actions.NewSink(cfg.Actions.Dir, nil, nil).List()
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summaries)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tFROM\tSTATUS\tMESSAGE")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.File, s.Meta["from"], s.Status(), preview(s.Message, 60))
		}
		return tw.Flush()
	},
}

func init() {
	actionsListCmd.Flags().Bool("json", false, "print records as JSON")
	actionsCmd.AddCommand(actionsListCmd)
	rootCmd.AddCommand(actionsCmd)
}

func preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}
