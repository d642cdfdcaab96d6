package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenfi/core/internal/auth"
)

var (
	tokenTTL time.Duration
)

func init() {
	tokenIssueCmd.Flags().DurationVarP(&tokenTTL, "ttl", "", 24*time.Hour, "token lifetime")

	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "manage api tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "issue a bearer token for --user, signed with ZENFI_AUTH_SECRET",
	Args:  cobra.NoArgs,
	RunE:  doTokenIssue,
}

func doTokenIssue(cmd *cobra.Command, args []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}

	signer, err := auth.New([]byte(cfg.AuthSecret))
	if err != nil {
		return err
	}

	token, err := signer.Issue(userID, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue: %w", err)
	}

	fmt.Println(token)
	return nil
}
