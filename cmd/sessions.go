package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/syndy/cardscan/internal/model"
	"github.com/syndy/cardscan/internal/store"
)

var (
	sessionsLimit  int
	sessionsStatus string
	sessionsFormat string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored scan sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored session snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sessions"); err != nil {
			return err
		}
		ctx := cmd.Context()

		snapshots, err := initStore(ctx)
		if err != nil {
			return err
		}
		if snapshots == nil {
			return fmt.Errorf("no session store configured")
		}
		defer snapshots.Close()

		sessions, err := snapshots.ListSessions(ctx, store.SessionFilter{
			Status: model.ProcessingStatus(sessionsStatus),
			Limit:  sessionsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTEP\tSTATUS\tCONTACT\tCOMPANY\tUPDATED")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				s.ID, s.Step, s.Processing, s.Contact.Name, s.Contact.Company,
				s.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored session snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sessions"); err != nil {
			return err
		}
		ctx := cmd.Context()

		snapshots, err := initStore(ctx)
		if err != nil {
			return err
		}
		if snapshots == nil {
			return fmt.Errorf("no session store configured")
		}
		defer snapshots.Close()

		sess, err := snapshots.GetSession(ctx, args[0])
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("no session %s", args[0])
			}
			return err
		}
		return printSession(cmd.OutOrStdout().Write, *sess, sessionsFormat)
	},
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "max sessions to list")
	sessionsListCmd.Flags().StringVar(&sessionsStatus, "status", "", "filter by processing status")
	sessionsShowCmd.Flags().StringVarP(&sessionsFormat, "output", "o", "json", "output format: json or yaml")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
