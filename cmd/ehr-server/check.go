package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ehr/intake/internal/domain/questionnaire"
	"github.com/ehr/intake/internal/platform/terminology"
)

var errSubmissionRejected = errors.New("submission rejected")

func checkCmd() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a submission against a questionnaire offline and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.questionnairePath, "questionnaire", "", "Questionnaire definition (JSON)")
	cmd.Flags().StringVar(&opts.submissionPath, "submission", "", "Submission payload (JSON)")
	cmd.Flags().StringVar(&opts.valueSetPath, "valuesets", "", "Additional value sets (JSON array)")
	cmd.Flags().IntVar(&opts.maxTextLength, "max-text", questionnaire.DefaultMaxTextLength, "Maximum text answer length")
	cmd.Flags().BoolVar(&opts.requireRepetitions, "require-repetitions", false, "Reject required repeating groups with no repetitions")
	_ = cmd.MarkFlagRequired("questionnaire")
	_ = cmd.MarkFlagRequired("submission")
	return cmd
}

type checkOptions struct {
	questionnairePath  string
	submissionPath     string
	valueSetPath       string
	maxTextLength      int
	requireRepetitions bool
}

// runCheck prints the CheckResult as JSON and returns errSubmissionRejected
// when the answers fail validation.
func runCheck(ctx context.Context, out io.Writer, opts checkOptions) error {
	var q questionnaire.Questionnaire
	if err := readJSON(opts.questionnairePath, &q); err != nil {
		return err
	}
	var req questionnaire.SubmitRequest
	if err := readJSON(opts.submissionPath, &req); err != nil {
		return err
	}

	registry := terminology.NewRegistry()
	if opts.valueSetPath != "" {
		if _, err := registry.LoadFile(opts.valueSetPath); err != nil {
			return err
		}
	}
	questionnaire.ApplyDefinitionDefaults(&q)
	if err := questionnaire.ValidateDefinition(&q, registry.Has); err != nil {
		return fmt.Errorf("questionnaire %s: %w", opts.questionnairePath, err)
	}

	res, err := questionnaire.DryRun(ctx, &q, &req,
		questionnaire.NewValidator(registry,
			questionnaire.WithMaxTextLength(opts.maxTextLength),
			questionnaire.WithRequiredRepetitions(opts.requireRepetitions),
		),
		questionnaire.NewObservationBuilder(),
	)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return errSubmissionRejected
	}
	return nil
}

func readJSON(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
