package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rollcall/internal/clock"
	"rollcall/internal/report"
)

var reportDate, reportStart, reportEnd string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print attendance statistics for a date or range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		var (
			days []report.DayStats
			err  error
		)
		if reportStart != "" || reportEnd != "" {
			days, err = rt.Reports.StatsForRange(ctx, reportStart, reportEnd)
		} else {
			date := reportDate
			if date == "" {
				date = clock.Today(rt.Clock)
			}
			var st report.DayStats
			st, err = rt.Reports.StatsForDate(ctx, date)
			days = []report.DayStats{st}
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, days)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tPRESENT\tEXCUSED\tSICK\tABSENT\tTOTAL")
		for _, d := range days {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", d.Date, d.Present, d.Excused, d.Sick, d.Absent, d.Total)
		}
		return w.Flush()
	},
}

var absencesCmd = &cobra.Command{
	Use:   "notify-absences",
	Short: "Notify guardians of subjects without a record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		date := reportDate
		if date == "" {
			date = clock.Today(rt.Clock)
		}
		ids, err := rt.Attendance.NotifyAbsences(cmd.Context(), date)
		if err != nil {
			return err
		}
		verb := "delivered"
		if rt.Config.QueueBackend == "redis" {
			verb = "queued"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d absence notifications %s for %s\n", len(ids), verb, date)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "calendar date (default today)")
	reportCmd.Flags().StringVar(&reportStart, "start", "", "range start")
	reportCmd.Flags().StringVar(&reportEnd, "end", "", "range end")
	absencesCmd.Flags().StringVar(&reportDate, "date", "", "calendar date (default today)")
}
