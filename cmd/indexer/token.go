package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainsafe/evm-indexer/pkg/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate credentials for the operational API",
}

var generateTokenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Sign an admin token with auth.jwt_secret",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is not set")
		}
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).IssueToken(subject, auth.RoleAdmin, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var generateSecretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Print a random signing secret",
	RunE: func(*cobra.Command, []string) error {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		fmt.Println(base64.RawURLEncoding.EncodeToString(buf))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(generateTokenCmd, generateSecretCmd)

	generateTokenCmd.Flags().StringP("subject", "n", "operator", "Token subject, recorded on acknowledgements")
	generateTokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}
