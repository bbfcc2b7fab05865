package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var gitlabToken string

var rootCmd = &cobra.Command{
	Use:   "glpilot-cli",
	Short: "glpilot-cli is the command-line interface for glpilot.",
	Long:  `A CLI for administrative tasks against the glpilot service, such as registering GitLab projects and their webhooks.`,
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&gitlabToken, "gitlab-token", "t", "", "GitLab access token")

	if err := viper.BindPFlag("GITLAB_TOKEN", rootCmd.PersistentFlags().Lookup("gitlab-token")); err != nil {
		slog.Error("Error binding flag", "error", err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
