package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"booth-kiosk/internal/journal"
	"booth-kiosk/internal/payment"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var errNoJournal = errors.New("no payment journal configured, set JOURNAL_DSN or --dsn")

type openFunc func(dsn string) (*sql.DB, error)

func newJournalCmd(open openFunc) *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "journal <order-id>",
		Short: "List the recorded payment outcomes of an order",
		Long: `journal prints every terminal payment outcome the kiosk recorded for an
order, oldest first. Staff use it to reconcile an order with the backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				_ = godotenv.Load()
				dsn = os.Getenv("JOURNAL_DSN")
			}
			if dsn == "" {
				return errNoJournal
			}

			conn, err := open(dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			entries, err := journal.NewRepository(conn).ListByOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "no payment outcomes recorded for order %s\n", args[0])
				return nil
			}
			for _, e := range entries {
				request := e.RequestID
				if request == "" {
					request = "-"
				}
				fmt.Fprintf(out, "%s  %-9s  %-10s  %-12s  %s\n",
					e.RecordedAt.UTC().Format(time.RFC3339),
					e.Status, e.Method, request,
					payment.FormatAmount(e.Amount),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "journal database (defaults to $JOURNAL_DSN)")
	return cmd
}
