package cmd

import (
	"errors"
	"fmt"

	"github.com/spigell/cv-evaluator/internal/retrieval"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:   "seed [dir]",
	Short: "Index the ground-truth documents used as scoring context",
	Long: `Seed reads every .txt, .md and .pdf file in the documents directory,
splits it into chunks, embeds them and replaces the stored chunks of that
document. With --reset every stored chunk is removed first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reset, _ := cmd.Flags().GetBool("reset")
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		dir := a.config.Documents.Root
		if len(args) == 1 {
			dir = args[0]
		}

		if err := a.withRetrieval(ctx); err != nil {
			return err
		}

		if reset {
			if !yes {
				ok, err := confirm("Remove every indexed chunk before seeding")
				if err != nil {
					return err
				}
				if !ok {
					a.logger.Info("seed aborted")
					return nil
				}
			}
			removed, err := a.index.Reset(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("index reset", zap.Int64("removed", removed))
		}

		report, err := retrieval.Seed(ctx, a.index, a.extractor, dir, a.config.Documents.ChunkSize, a.logger)
		if err != nil {
			return err
		}

		a.logger.Info("seed finished",
			zap.Int("documents", report.Documents),
			zap.Int("chunks", report.Chunks),
			zap.Strings("skipped", report.Skipped),
		)
		return nil
	},
}

func init() {
	seedCmd.Flags().Bool("reset", false, "remove every indexed chunk first")
	seedCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(seedCmd)
}

func confirm(label string) (bool, error) {
	prompt := promptui.Select{
		Label: label,
		Items: []string{"No", "Yes"},
	}
	_, answer, err := prompt.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return answer == "Yes", nil
}
