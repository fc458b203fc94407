package cmd

import (
	"encoding/json"

	"github.com/spigell/cv-evaluator/internal/evaluation"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print the status of an evaluation job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		raw, _ := cmd.Flags().GetBool("raw")

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		view, err := a.status.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if !raw || view.IsUnknown() {
			return printJSON(view)
		}

		snapshots, err := a.db.Jobs().RawResult(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(struct {
			evaluation.View
			Raw map[string]json.RawMessage `json:"raw,omitempty"`
		}{View: view, Raw: snapshots})
	},
}

func init() {
	statusCmd.Flags().Bool("raw", false, "include the stored intermediate documents")

	rootCmd.AddCommand(statusCmd)
}
