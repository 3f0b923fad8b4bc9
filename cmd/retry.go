package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Inspects or drains the retry queue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Prints the queued keyword ids as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := a.Retry.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list retry queue: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Removes every entry from the retry queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Retry.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear retry queue: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "retry queue cleared")
			return nil
		},
	})
	return cmd
}
