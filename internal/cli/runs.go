package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"narrativeradar/internal/store"
)

func init() {
	latest := &cobra.Command{
		Use:   "latest",
		Short: "Print the last stored run",
		Args:  cobra.NoArgs,
		RunE:  runLatest,
	}
	latest.Flags().StringP("format", "f", "json", "Output format: json or markdown")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored run by id",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	show.Flags().StringP("format", "f", "json", "Output format: json or markdown")

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  runRuns,
	}
	runs.Flags().IntP("limit", "l", 20, "Max results")
	runs.Flags().Int("prune", 0, "Keep only the newest N runs before listing")

	RootCmd.AddCommand(latest, show, runs)
}

func openStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.DBPath == "" {
		return nil, errors.New("no database path configured")
	}
	return store.NewSQLiteStore(cfg.DBPath)
}

func runLatest(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.Latest(cmd.Context())
	if errors.Is(err, store.ErrNotFound) {
		return errors.New("no stored runs; use `radar run --save` first")
	}
	if err != nil {
		return err
	}
	return printRun(cmd.OutOrStdout(), run, format)
}

func runShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.Get(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("run %s not found", args[0])
	}
	if err != nil {
		return err
	}
	return printRun(cmd.OutOrStdout(), run, format)
}

func runRuns(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	keep, _ := cmd.Flags().GetInt("prune")

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if keep > 0 {
		removed, err := s.Prune(cmd.Context(), keep)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "pruned %d runs\n", removed)
	}

	summaries, err := s.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), summaries)
}
