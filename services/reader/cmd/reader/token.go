package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/pagemark/internal/platform/auth"
)

var (
	tokenUser   string
	tokenSecret string
	tokenIssuer string
	tokenTTL    time.Duration
)

// tokenCmd mints an access token for local setups that share JWT_SECRET
// with the services.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = os.Getenv("PAGEMARK_JWT_SECRET")
		}
		if secret == "" {
			return errors.New("--secret or PAGEMARK_JWT_SECRET is required")
		}
		user := tokenUser
		if user == "" {
			user = uuid.NewString()
		} else if _, err := uuid.Parse(user); err != nil {
			return fmt.Errorf("--user must be a UUID: %w", err)
		}

		iss := auth.Issuer{Secret: []byte(secret), Issuer: tokenIssuer, TTL: tokenTTL}
		tok, exp, err := iss.NewAccessToken(user, time.Now().UTC())
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, map[string]any{
			"user_id":    user,
			"token":      tok,
			"expires_at": exp,
		})
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (default: a new random id)")
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HS256 secret shared with the services")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "", "issuer claim, if the services check one")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
