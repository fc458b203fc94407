package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spigell/cv-evaluator/internal/evaluation"
	"github.com/spigell/cv-evaluator/internal/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const pollInterval = time.Second

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a CV and a project report in-process and print the result",
	Long: `Evaluate uploads the given files (or reuses stored ids), admits the job and
runs it with the local workers. With --wait the command polls until the job
reaches a terminal status and prints the view as JSON; otherwise it prints the
admission and lets the local workers finish the queue before exiting.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		flags := cmd.Flags()
		title, _ := flags.GetString("title")
		cv, _ := flags.GetString("cv")
		report, _ := flags.GetString("report")
		timeout, _ := flags.GetDuration("timeout")
		wait, _ := flags.GetBool("wait")

		return evaluate(ctx, title, cv, report, wait, timeout)
	},
}

func init() {
	evaluateCmd.Flags().String("title", "", "job title the candidate applies for")
	evaluateCmd.Flags().String("cv", "", "CV file path or stored file id")
	evaluateCmd.Flags().String("report", "", "project report file path or stored file id")
	evaluateCmd.Flags().Bool("wait", false, "poll until the job is completed or failed and print the result")
	evaluateCmd.Flags().Duration("timeout", 15*time.Minute, "how long to wait for the job to finish")
	evaluateCmd.MarkFlagRequired("title")
	evaluateCmd.MarkFlagRequired("cv")
	evaluateCmd.MarkFlagRequired("report")

	rootCmd.AddCommand(evaluateCmd)
}

func evaluate(ctx context.Context, title, cv, report string, wait bool, timeout time.Duration) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cvID, err := resolveDocument(ctx, a, cv)
	if err != nil {
		return err
	}
	reportID, err := resolveDocument(ctx, a, report)
	if err != nil {
		return err
	}

	if err := a.withPipeline(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.drain(ctx, timeout); err != nil {
			a.logger.Warn("queue shutdown", zap.Error(err))
		}
	}()

	admission, err := a.admitter.Admit(ctx, evaluation.Request{JobTitle: title, CVID: cvID, ReportID: reportID})
	if err != nil {
		return err
	}
	a.logger.Info("job admitted", zap.String("id", admission.ID), zap.String("status", string(admission.Status)))
	if !wait {
		return printJSON(admission)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	view, err := waitTerminal(waitCtx, a.status, admission.ID)
	if err != nil {
		return err
	}
	return printJSON(view)
}

// resolveDocument stores a local file, or accepts an existing stored id as is.
func resolveDocument(ctx context.Context, a *app, ref string) (string, error) {
	if _, err := os.Stat(ref); err == nil {
		f, err := os.Open(ref)
		if err != nil {
			return "", err
		}
		defer f.Close()

		id, err := a.documents.Save(ctx, filepath.Base(ref), f)
		if err != nil {
			return "", fmt.Errorf("store %s: %w", ref, err)
		}
		a.logger.Debug("stored document", zap.String("path", ref), zap.String("id", id))
		return id, nil
	}
	// unknown ids are reported by admission
	return ref, nil
}

type statusGetter interface {
	Get(ctx context.Context, id string) (evaluation.View, error)
}

func waitTerminal(ctx context.Context, status statusGetter, id string) (evaluation.View, error) {
	for {
		view, err := status.Get(ctx, id)
		if err != nil {
			return evaluation.View{}, err
		}
		if view.IsUnknown() {
			return view, errors.New(evaluation.UnknownJobMessage)
		}
		if view.Status.Terminal() {
			return view, nil
		}
		if err := utils.WaitFor(ctx, pollInterval); err != nil {
			return view, fmt.Errorf("waiting for job %s (last status %s): %w", id, view.Status, err)
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
