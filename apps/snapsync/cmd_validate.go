package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
	"github.com/tilsley/snapsync/pkg/logging"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <artifact>",
		Short: "Check that a snapshot file parses as a JSON object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read artifact: %w", err)
			}
			if err := snapshot.Validate(data, logging.New()); err != nil {
				return err
			}
			s := snapshot.NewSnapshot()
			if err := json.Unmarshal(data, s); err != nil {
				return fmt.Errorf("decode artifact: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid, %d entries\n", args[0], s.Len())
			return nil
		},
	}
}
