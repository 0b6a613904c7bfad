package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rollcall/internal/attendance"
	"rollcall/internal/clock"
	"rollcall/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Open and inspect check-in sessions",
}

var issuerID, issuerName string

var sessionOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a session for today and print its payload",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := rt.Sessions.CreateSession(cmd.Context(), session.Issuer{ID: issuerID, Name: issuerName})
		if err != nil {
			return err
		}
		return printSession(cmd, s)
	},
}

var sessionActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Print today's active session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, ok, err := rt.Sessions.ActiveSession(cmd.Context(), clock.Today(rt.Clock))
		if err != nil {
			return err
		}
		if !ok {
			return attendance.ErrNoActiveSession
		}
		return printSession(cmd, s)
	},
}

var sessionRegenerateCmd = &cobra.Command{
	Use:   "regenerate <id>",
	Short: "Issue a fresh token and restart the validity window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := rt.Sessions.Regenerate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printSession(cmd, s)
	},
}

func printSession(cmd *cobra.Command, s session.Session) error {
	text, err := session.Payload(s)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, map[string]any{"session": s, "payload": text})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s for %s, expires %s\n%s\n",
		s.ID, s.EffectiveDate, s.ExpiresAt.Format("2006-01-02 15:04"), text)
	return nil
}

var scanCmd = &cobra.Command{
	Use:   "scan <payload-or-code>",
	Short: "Record a scanned subject against today's session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := rt.Attendance.Redeem(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, rec)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s recorded %s at %s\n", rec.SubjectName, rec.Group, rec.Status, rec.Time)
		return nil
	},
}

func init() {
	sessionOpenCmd.Flags().StringVar(&issuerID, "issuer", "cli", "issuer id")
	sessionOpenCmd.Flags().StringVar(&issuerName, "issuer-name", "", "issuer display name")
	sessionCmd.AddCommand(sessionOpenCmd, sessionActiveCmd, sessionRegenerateCmd)
}
