package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"

	"github.com/glpilot/glpilot/internal/config"
	"github.com/glpilot/glpilot/internal/db"
	"github.com/glpilot/glpilot/internal/store"
)

var outputJSON bool

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Lists the GitLab projects registered with glpilot",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		dbConn, closeDB, err := db.NewDatabase(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer closeDB()

		node, err := snowflake.NewNode(cfg.SnowflakeNode)
		if err != nil {
			return fmt.Errorf("failed to create snowflake node: %w", err)
		}

		projects, err := store.NewProjectStore(dbConn.DB, node).List(ctx)
		if err != nil {
			return err
		}

		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(projects)
		}

		if len(projects) == 0 {
			fmt.Println("No projects are registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tGITLAB ID\tENABLED\tREGISTERED")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%d\t%t\t%s\n",
				p.Name,
				p.GitLabProjectID,
				p.Enabled,
				p.CreatedAt.Format(time.RFC822),
			)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	projectsCmd.Flags().BoolVar(&outputJSON, "json", false, "Print the project list as JSON")
	rootCmd.AddCommand(projectsCmd)
}
