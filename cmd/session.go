package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/ecosort/internal/classifier"
	"github.com/lehigh-university-libraries/ecosort/internal/images"
	"github.com/lehigh-university-libraries/ecosort/internal/presenter"
	"github.com/lehigh-university-libraries/ecosort/internal/session"
)

const sessionHelp = `Commands:
  select <path>  choose a PNG or JPEG file or URL (empty path keeps the current one)
  submit         classify the selected image
  wait           block until the current request finishes
  status         show the current state
  cancel         abort the current request
  help           show this help
  quit           leave the session`

func newSessionCmd() *cobra.Command {
	var previewDir string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Interactive classification session",
		Long: `Starts an interactive session reading commands from stdin. Select an image,
submit it, and watch the request move through submitting to its result.

` + sessionHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := classifier.New(apiURL(cmd), classifier.WithLogger(slog.Default()))
			if err != nil {
				return err
			}

			ctrl := session.New(client,
				session.WithLogger(slog.Default()),
				session.WithPreviewDir(previewDir))
			defer ctrl.Close()

			return runSession(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), ctrl)
		},
	}

	cmd.Flags().StringVar(&previewDir, "preview-dir", "", "Directory for preview thumbnails (default system temp dir)")

	return cmd
}

// syncWriter serializes writes from the prompt loop and from observers
// running on the request goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func runSession(ctx context.Context, in io.Reader, out io.Writer, ctrl *session.Controller) error {
	w := &syncWriter{w: out}
	show := func(v presenter.View) {
		if err := presenter.Encode(w, v, "text"); err != nil {
			slog.Error("Unable to render view", "err", err)
		}
	}

	unsubscribe := ctrl.Subscribe(func(s session.State) {
		show(presenter.Describe(s, ctrl.Selected()))
	})
	defer unsubscribe()

	fetcher := images.NewFetcher()
	var last *session.Submission
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(w, `Type "help" for commands.`)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			break
		}

		command, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(command) {
		case "":
		case "select":
			cand, err := fetcher.Fetch(ctx, arg)
			if err == nil {
				err = ctrl.Select(cand)
			}
			if err != nil {
				show(presenter.DescribeError(presenter.Describe(ctrl.State(), ctrl.Selected()), err))
			}
		case "submit":
			sub, err := ctrl.Submit(ctx)
			if err != nil {
				show(presenter.DescribeError(presenter.Describe(ctrl.State(), ctrl.Selected()), err))
				continue
			}
			last = sub
		case "wait":
			if last == nil {
				fmt.Fprintln(w, "Nothing submitted yet.")
				continue
			}
			if _, err := last.Wait(ctx); err != nil {
				if errors.Is(err, session.ErrSuperseded) {
					fmt.Fprintln(w, "That request was replaced by a newer selection.")
					continue
				}
				return nil
			}
		case "status":
			show(presenter.Describe(ctrl.State(), ctrl.Selected()))
		case "cancel":
			if last != nil {
				last.Cancel()
			}
		case "help":
			fmt.Fprintln(w, sessionHelp)
		case "quit", "exit":
			return nil
		default:
			fmt.Fprintf(w, "Unknown command %q. Type \"help\" for commands.\n", command)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}
