package main

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"

	"github.com/glpilot/glpilot/internal/config"
	"github.com/glpilot/glpilot/internal/core"
	"github.com/glpilot/glpilot/internal/db"
	"github.com/glpilot/glpilot/internal/gitlab"
	"github.com/glpilot/glpilot/internal/logger"
	"github.com/glpilot/glpilot/internal/store"
)

var (
	setupProjectID  int64
	setupName       string
	setupWebhookURL string
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Registers a GitLab project and installs its webhook",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		log := logger.NewLogger(logger.Config{Level: cfg.LogLevel.String(), Output: "stderr"}, nil)

		dbConn, closeDB, err := db.NewDatabase(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer closeDB()

		node, err := snowflake.NewNode(cfg.SnowflakeNode)
		if err != nil {
			return fmt.Errorf("failed to create snowflake node: %w", err)
		}
		projects := store.NewProjectStore(dbConn.DB, node)

		client, err := gitlab.NewClient(cfg.GitLabToken, cfg.GitLabBaseURL, log)
		if err != nil {
			return fmt.Errorf("failed to create gitlab client: %w", err)
		}

		project := &core.Project{
			GitLabProjectID: setupProjectID,
			Name:            setupName,
			Enabled:         true,
		}
		if err := projects.Register(ctx, project); err != nil {
			return err
		}

		if err := client.RegisterWebhook(ctx, setupProjectID, setupWebhookURL, cfg.GitLabWebhookSecret); err != nil {
			return fmt.Errorf("failed to install webhook: %w", err)
		}

		fmt.Printf("Project %q (gitlab id %d) registered, webhook points at %s\n",
			setupName, setupProjectID, setupWebhookURL)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	setupCmd.Flags().Int64Var(&setupProjectID, "project-id", 0, "GitLab project ID")
	setupCmd.Flags().StringVar(&setupName, "name", "", "Project display name")
	setupCmd.Flags().StringVar(&setupWebhookURL, "webhook-url", "", "Public URL of the webhook endpoint")
	_ = setupCmd.MarkFlagRequired("project-id")
	_ = setupCmd.MarkFlagRequired("name")
	_ = setupCmd.MarkFlagRequired("webhook-url")

	rootCmd.AddCommand(setupCmd)
}
