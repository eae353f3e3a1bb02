package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse the history of deep queries",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(c.out, "\n📭 No runs recorded")
				return nil
			}
			fmt.Fprintf(c.out, "\n🗂️  %d run(s):\n\n", len(runs))
			for _, r := range runs {
				fmt.Fprintf(c.out, "%s  %s  %s  %d window(s), %d candidate(s)\n",
					shortID(r.RunID), r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.QueryPath, r.TotalWindows, r.Candidates)
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show (0 for all)")

	show := &cobra.Command{
		Use:   "show <run_id>",
		Short: "Show the ranked results of a run (id or unique prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := db.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Segment %.0fs | Overlap %.0fs | Min segments %d | %s\n",
				report.Params.SegmentLength, report.Params.Overlap, report.Params.MinSegments,
				report.StartedAt.Local().Format("2006-01-02 15:04:05"))
			printReport(c.out, report)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <run_id>",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := db.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := db.DeleteRun(cmd.Context(), report.RunID); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "🗑️  Deleted run %s\n", report.RunID)
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}
