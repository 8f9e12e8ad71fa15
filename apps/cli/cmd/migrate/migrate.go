package migratecmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence"
)

// Command groups the platform schema migration helpers.
func Command() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Platform schema migrations (public.organizations)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := persistence.MigratePlatform(cmd.Context(), databaseURL); err != nil {
					return err
				}
				return printVersion(cmd, databaseURL)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current migration version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return printVersion(cmd, databaseURL)
			},
		},
		downCommand(&databaseURL),
	)
	return cmd
}

func downCommand(databaseURL *string) *cobra.Command {
	var steps int
	c := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			if err := persistence.RollbackPlatform(cmd.Context(), *databaseURL, steps); err != nil {
				return err
			}
			return printVersion(cmd, *databaseURL)
		},
	}
	c.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	return c
}

func printVersion(cmd *cobra.Command, databaseURL string) error {
	version, err := persistence.PlatformVersion(cmd.Context(), databaseURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "platform schema at version %d\n", version)
	return nil
}
