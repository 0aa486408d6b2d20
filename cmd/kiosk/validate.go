package main

import (
	"fmt"

	"booth-kiosk/internal/payment"

	"github.com/spf13/cobra"
)

func newValidateStudentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-student <id>",
		Short: "Check a 4-digit student id without contacting the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := payment.ParseStudentID(args[0])
			if err != nil {
				return fmt.Errorf("invalid student id %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "grade %d, room %d, number %d\n", id.Grade, id.Room, id.Number)
			return nil
		},
	}
}
