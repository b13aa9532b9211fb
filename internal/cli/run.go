package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"narrativeradar/internal/radar"
	"narrativeradar/internal/report"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute a fresh run",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}
	cmd.Flags().StringP("format", "f", "json", "Output format: json or markdown")
	cmd.Flags().Bool("save", false, "Persist the run to the database")
	RootCmd.AddCommand(cmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	save, _ := cmd.Flags().GetBool("save")
	if err := checkFormat(format); err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.Pipeline.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if save {
		if a.Store == nil {
			return errors.New("--save needs a database path")
		}
		if err := a.Store.Save(cmd.Context(), run); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		a.Logger.Info("run saved", "run_id", run.ID)
	}
	return printRun(cmd.OutOrStdout(), run, format)
}

func checkFormat(format string) error {
	switch format {
	case "json", "markdown", "md":
		return nil
	default:
		return fmt.Errorf("unknown format %q, expected json or markdown", format)
	}
}

func printRun(w io.Writer, run *radar.RunRecord, format string) error {
	if format == "json" {
		return writeJSON(w, run)
	}
	md, err := report.Markdown(run)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, md)
	return err
}
