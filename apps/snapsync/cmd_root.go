package main

import (
	"github.com/spf13/cobra"

	"github.com/tilsley/snapsync/apps/snapsync/internal/config"
)

// app carries state shared by every subcommand. cfg is loaded once in
// PersistentPreRunE and passed down explicitly from there.
type app struct {
	cfgPath string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "snapsync",
		Short: "Snapshot a GitHub directory into JSON and publish it",
		Long: `snapsync walks a directory of a GitHub repository, fetches and decodes every
file, writes a JSON snapshot keyed by download URL, then commits the snapshot
back to the repository and uploads it to an OpenAI-compatible vector store.

Configuration comes from an optional YAML file (--config), SNAPSYNC_-prefixed
environment variables and the conventional GITHUB_TOKEN / OPENAI_API_KEY.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsConfig(cmd) {
				return nil
			}
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
		newScheduleCmd(a),
		newValidateCmd(),
		newConfigCmd(a),
	)
	return root
}

func needsConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "validate", "completion":
		return false
	default:
		return true
	}
}
