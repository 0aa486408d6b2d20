package main

import (
	"fmt"
	"os"
	"time"

	"booth-kiosk/internal/auth"

	"github.com/spf13/cobra"
)

func newWhoamiCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show which booth the configured kiosk token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return auth.ErrNoToken
			}
			claims, err := auth.ParseBoothClaims(token)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "booth: %s\n", claims.BoothID)
			if claims.Name != "" {
				fmt.Fprintf(out, "name: %s\n", claims.Name)
			}
			if claims.ExpiresAt != nil {
				fmt.Fprintf(out, "expires: %s\n", claims.ExpiresAt.UTC().Format(time.RFC3339))
			}
			if claims.Expired(time.Now()) {
				fmt.Fprintln(out, "warning: token has expired, the backend will reject it")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", os.Getenv("KIOSK_TOKEN"), "kiosk token (defaults to $KIOSK_TOKEN)")
	return cmd
}
