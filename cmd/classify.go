package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/ecosort/internal/classifier"
	"github.com/lehigh-university-libraries/ecosort/internal/images"
	"github.com/lehigh-university-libraries/ecosort/internal/presenter"
	"github.com/lehigh-university-libraries/ecosort/internal/session"
)

// errClassificationFailed makes the process exit non-zero after the failure
// has already been rendered.
var errClassificationFailed = errors.New("classification failed")

func newClassifyCmd() *cobra.Command {
	var (
		output  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "classify <image|url>",
		Short: "Classify one PNG or JPEG image",
		Long: `Uploads one image to the classification service and prints the predicted
category and confidence. Exits with status 1 when classification fails.`,
		Example: `  # Classify against the default service
  ecosort classify bottle.jpg

  # Classify a photo from the web
  ecosort classify https://example.org/bottle.jpg

  # JSON output against a remote service
  ecosort classify --api-url https://ecosort.example.org --output json bottle.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := classifier.New(apiURL(cmd), classifier.WithLogger(slog.Default()))
			if err != nil {
				return err
			}

			ctrl := session.New(client, session.WithLogger(slog.Default()))
			defer ctrl.Close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			state, err := classifyOnce(ctx, ctrl, args[0])
			if err != nil {
				view := presenter.DescribeError(presenter.Describe(ctrl.State(), ctrl.Selected()), err)
				if encErr := presenter.Encode(cmd.OutOrStdout(), view, output); encErr != nil {
					return encErr
				}
				return errClassificationFailed
			}

			view := presenter.Describe(state, ctrl.Selected())
			if err := presenter.Encode(cmd.OutOrStdout(), view, output); err != nil {
				return err
			}
			if state.Phase() != session.PhaseSucceeded {
				return errClassificationFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 waits indefinitely)")

	return cmd
}

// classifyOnce selects path (a file or http(s) URL), submits it and waits for the outcome.
func classifyOnce(ctx context.Context, ctrl *session.Controller, path string) (session.State, error) {
	cand, err := images.NewFetcher().Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Select(cand); err != nil {
		return nil, err
	}

	sub, err := ctrl.Submit(ctx)
	if err != nil {
		return nil, err
	}
	state, err := sub.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to wait for classification: %w", err)
	}
	return state, nil
}
