package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rollcall/internal/auth"
	"rollcall/internal/config"
)

var (
	tokenSubject string
	tokenName    string
	tokenRole    string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator bearer token",
	Long: `Signs an access/refresh token pair with JWT_SIGNING_KEY. For the
student role --subject must be the subject id or external code.`,
	Annotations: map[string]string{"standalone": "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfg := config.Load()
		role, err := auth.ParseRole(tokenRole)
		if err != nil {
			return err
		}
		pair, err := auth.Issue(auth.Identity{Subject: tokenSubject, Name: tokenName, Role: role},
			cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, pair)
		}
		fmt.Fprintln(cmd.OutOrStdout(), pair.AccessToken)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleTeacher), "admin, teacher or student")
	_ = tokenCmd.MarkFlagRequired("subject")
}
