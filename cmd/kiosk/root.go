package main

import (
	"fmt"
	"os"

	"booth-kiosk/internal/db"

	"github.com/spf13/cobra"
)

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "kiosk",
		Short: "Booth kiosk payment client",
		Long: `kiosk places an order for a cart and follows its payment to the end:
a QR code or a student id payment, pushed status updates and a hard deadline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.AddCommand(newPayCmd())
	root.AddCommand(newValidateStudentCmd())
	root.AddCommand(newWhoamiCmd())
	root.AddCommand(newJournalCmd(db.NewDatabase))
	root.AddCommand(newVersionCmd(version))
	return root
}

// Execute runs the root command
func Execute(version string) error {
	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
