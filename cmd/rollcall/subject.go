package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rollcall/internal/subject"
)

var subjectCmd = &cobra.Command{
	Use:   "subject",
	Short: "Manage the roster",
}

var newSubject subject.NewSubject

var subjectAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a subject",
	RunE: func(cmd *cobra.Command, _ []string) error {
		created, err := rt.Subjects.Create(cmd.Context(), newSubject)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, created)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", created.ID, created.ExternalCode)
		return nil
	},
}

var listGroup string

var subjectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subjects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var (
			items []subject.Subject
			err   error
		)
		if listGroup != "" {
			items, err = rt.Subjects.ListByGroup(cmd.Context(), listGroup)
		} else {
			items, err = rt.Subjects.List(cmd.Context())
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, items)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCODE\tNAME\tGROUP")
		for _, s := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.ExternalCode, s.Name, s.Group)
		}
		return w.Flush()
	},
}

var subjectDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a subject; its records are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return rt.Subjects.Delete(cmd.Context(), args[0])
	},
}

func init() {
	f := subjectAddCmd.Flags()
	f.StringVar(&newSubject.ExternalCode, "code", "", "external code (unique)")
	f.StringVar(&newSubject.Name, "name", "", "display name")
	f.StringVar(&newSubject.Group, "group", "", "group label")
	f.StringVar(&newSubject.OwnerRef, "owner", "", "owner reference")
	f.StringVar(&newSubject.Contact, "contact", "", "guardian contact")
	_ = subjectAddCmd.MarkFlagRequired("code")
	_ = subjectAddCmd.MarkFlagRequired("name")
	_ = subjectAddCmd.MarkFlagRequired("group")

	subjectListCmd.Flags().StringVar(&listGroup, "group", "", "only this group")

	subjectCmd.AddCommand(subjectAddCmd, subjectListCmd, subjectDeleteCmd)
}
