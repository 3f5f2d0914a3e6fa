package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	middleware "github.com/markdave123-py/contexta-kb/internal/api/middlewares"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the --owner user",
	Long:  `Signs a token with JWT_SECRET for calling the HTTP API during development.`,
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	if jwtSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	tok, err := middleware.IssueToken(jwtSecret, ownerID, tokenTTL)
	if err != nil {
		return err
	}
	cmd.Println(tok)
	return nil
}
