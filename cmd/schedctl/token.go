package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
)

type tokenFlags struct {
	userID string
	name   string
	email  string
	role   string
	secret string
	issuer string
	ttl    time.Duration
}

func newTokenCmd() *cobra.Command {
	flags := &tokenFlags{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for calling the API from scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := flags.secret
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("a signing secret is required (--secret or JWT_SECRET)")
			}
			role := models.UserRole(flags.role)
			switch role {
			case models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher, models.RoleStudent:
			default:
				return fmt.Errorf("unknown role %q", flags.role)
			}

			auth := service.NewAuthService(nil, service.AuthConfig{AccessTokenSecret: secret, Issuer: flags.issuer})
			token, expiresAt, err := auth.IssueToken(models.UserInfo{
				ID:       flags.userID,
				FullName: flags.name,
				Email:    flags.email,
				Role:     role,
			}, flags.ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.userID, "user", "", "User id placed in the token subject")
	cmd.Flags().StringVar(&flags.name, "name", "", "Display name")
	cmd.Flags().StringVar(&flags.email, "email", "", "Email")
	cmd.Flags().StringVar(&flags.role, "role", string(models.RoleAdmin), "Role (SUPERADMIN, ADMIN, TEACHER, STUDENT)")
	cmd.Flags().StringVar(&flags.secret, "secret", "", "HS256 signing secret (default $JWT_SECRET)")
	cmd.Flags().StringVar(&flags.issuer, "issuer", os.Getenv("JWT_ISSUER"), "Token issuer")
	cmd.Flags().DurationVar(&flags.ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
