// Command webhookctl is the operator-facing companion to cmd/server: it
// validates the central fleet config offline and tails the JSONL audit
// log, without needing a running server or GitHub credentials.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gh-fleet/webhook-server/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "webhookctl",
		Short: "Operate the GitHub fleet webhook service",
	}
	root.AddCommand(validateCmd(), auditCmd())
	return root
}

func validateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and sanity-check the central fleet config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := config.LoadFleetConfig(path)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			if fc.GitHubAppID == 0 {
				return fmt.Errorf("validate: github-app-id is unset or zero")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d repositories, %d fleet tokens, app id %d\n",
				len(fc.Repositories), len(fc.GitHubTokens), fc.GitHubAppID)
			for slug, repo := range fc.Repositories {
				if repo.Container != nil && repo.Container.Repository == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "warning: %s: container configured without a repository\n", slug)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", "./config.yaml", "path to the central config.yaml")
	return cmd
}
