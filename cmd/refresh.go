package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/serp-rank-tracker/internal/refresh"
	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

type refreshOutput struct {
	Summary  refresh.Summary `json:"summary"`
	Failed   []failedKeyword `json:"failed,omitempty"`
	Canceled bool            `json:"canceled,omitempty"`
}

type failedKeyword struct {
	KeywordID string `json:"keyword_id"`
	Provider  string `json:"provider"`
	Error     string `json:"error"`
}

func newRefreshCmd() *cobra.Command {
	var (
		ids   []string
		all   bool
		retry bool
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refreshes keyword positions once and prints a JSON summary",
		Example: `  serptracker refresh --ids 12,57
  serptracker refresh --all
  serptracker refresh --retry`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var targets []string
			switch {
			case all:
				if targets, err = a.Store.ListIDs(ctx); err != nil {
					return fmt.Errorf("list keyword ids: %w", err)
				}
			case retry:
				entries, err := a.Retry.List(ctx)
				if err != nil {
					return fmt.Errorf("list retry queue: %w", err)
				}
				targets = tracker.RetryIDs(entries)
			default:
				for _, id := range ids {
					if id = strings.TrimSpace(id); id != "" {
						targets = append(targets, id)
					}
				}
			}

			results, runErr := a.Orchestrator.RefreshIDs(ctx, targets, a.Settings())
			if runErr != nil && !errors.Is(runErr, tracker.ErrCanceled) {
				return fmt.Errorf("refresh: %w", runErr)
			}
			out := refreshOutput{Summary: refresh.Summarize(results), Canceled: runErr != nil}
			for _, r := range results {
				if r.Outcome.Err == nil || tracker.KindOf(r.Outcome.Err) == tracker.KindCanceled {
					continue
				}
				out.Failed = append(out.Failed, failedKeyword{
					KeywordID: r.Keyword.ID,
					Provider:  r.Outcome.Provider,
					Error:     r.Outcome.Err.Error(),
				})
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "comma separated keyword ids")
	cmd.Flags().BoolVar(&all, "all", false, "refresh every stored keyword")
	cmd.Flags().BoolVar(&retry, "retry", false, "refresh the keywords in the retry queue")
	cmd.MarkFlagsOneRequired("ids", "all", "retry")
	cmd.MarkFlagsMutuallyExclusive("ids", "all", "retry")
	return cmd
}
