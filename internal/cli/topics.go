package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"narrativeradar/internal/radar"
)

func init() {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Print the fixed narratives and the clustering topics in effect",
		Args:  cobra.NoArgs,
		RunE:  runTopics,
	}
	RootCmd.AddCommand(cmd)
}

func runTopics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	topics := radar.DefaultTopics()
	if cfg.TopicsFile != "" {
		if topics, err = radar.LoadTopics(cfg.TopicsFile); err != nil {
			return err
		}
	}
	if err := radar.ValidateTopics(topics); err != nil {
		return err
	}

	fixed := make([]map[string]string, 0)
	for _, f := range radar.FixedNarratives() {
		fixed = append(fixed, map[string]string{"id": f.ID, "title": f.Title})
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"fixed":  fixed,
		"topics": topics,
	})
}
