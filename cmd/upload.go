package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Store a CV and a project report and print their ids",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cv, _ := cmd.Flags().GetString("cv")
		report, _ := cmd.Flags().GetString("report")

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		ids := map[string]string{}
		for key, path := range map[string]string{"cv_id": cv, "report_id": report} {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			id, err := a.documents.Save(ctx, filepath.Base(path), f)
			f.Close()
			if err != nil {
				return fmt.Errorf("store %s: %w", path, err)
			}
			ids[key] = id
		}

		return printJSON(ids)
	},
}

func init() {
	uploadCmd.Flags().String("cv", "", "CV file path")
	uploadCmd.Flags().String("report", "", "project report file path")
	uploadCmd.MarkFlagRequired("cv")
	uploadCmd.MarkFlagRequired("report")

	rootCmd.AddCommand(uploadCmd)
}
