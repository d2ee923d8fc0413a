package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nbertagnolli/sql-rag/internal/domain/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a service bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		authCfg := auth.Config{
			Secret:   cfg.HTTP.Auth.Secret,
			Issuer:   cfg.HTTP.Auth.Issuer,
			TokenTTL: cfg.HTTP.Auth.TokenTTL,
		}
		if tokenTTL > 0 {
			authCfg.TokenTTL = tokenTTL
		}
		if authCfg.Secret == "" {
			return fmt.Errorf("auth secret is required (http.auth.secret or AUTH_SECRET)")
		}
		svc := auth.NewService(authCfg)
		token, err := svc.IssueToken(cmd.Context(), tokenSubject)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to config)")
	_ = tokenCmd.MarkFlagRequired("subject")
}
