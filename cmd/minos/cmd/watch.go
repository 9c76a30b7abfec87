package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/minos-eval/minos/pkg/olympus"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		in       inputFlags
		eng      engineFlags
		run      runFlags
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [files...]",
		Short: "Re-evaluate whenever the input files change",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := eng.apply(cmd, a.cfg.EngineOptions())
			if err != nil {
				return err
			}
			keys := in.keys(args)
			if keys.Predictions == "" {
				return fmt.Errorf("no predictions file: pass --predictions or a file named *prediction*.csv")
			}
			in.source = sourceFiles

			manager, closer, err := a.newManager(opts, &run, nil)
			if err != nil {
				return err
			}
			defer closer.Close()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			tracked := map[string]bool{}
			dirs := map[string]bool{}
			for _, p := range []string{keys.Predictions, keys.Baselines, keys.Features} {
				if p == "" {
					continue
				}
				abs, err := filepath.Abs(p)
				if err != nil {
					return err
				}
				tracked[abs] = true
				dirs[filepath.Dir(abs)] = true
			}
			// Watch directories so that editors replacing a file by rename are noticed.
			for dir := range dirs {
				if err := watcher.Add(dir); err != nil {
					return fmt.Errorf("failed to watch %s: %w", dir, err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			evaluate := func() {
				ds, label, err := a.loadDataset(cmd, &in, args)
				if err != nil {
					a.logger.Error(ctx, "failed to load dataset", map[string]any{"error": err.Error()})
					return
				}
				out, err := manager.Run(ctx, olympus.RunRequest{Data: ds, Source: "watch", Dataset: label})
				if err != nil {
					a.logger.Error(ctx, "evaluation failed", map[string]any{"error": err.Error()})
				}
				if out == nil {
					return
				}
				if err := render(cmd.OutOrStdout(), run.output, out, func(tw *tabwriter.Writer) {
					writeOutcome(tw, out)
				}); err != nil {
					a.logger.Error(ctx, "failed to render report", map[string]any{"error": err.Error()})
				}
			}

			evaluate()
			a.logger.Info(ctx, "watching for changes", map[string]any{"files": len(tracked)})

			timer := time.NewTimer(debounce)
			timer.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !tracked[filepath.Clean(ev.Name)] || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
						continue
					}
					timer.Reset(debounce)
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					a.logger.Warn(ctx, "watcher error", map[string]any{"error": err.Error()})
				case <-timer.C:
					evaluate()
				}
			}
		},
	}

	in.register(cmd)
	eng.register(cmd)
	run.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before re-evaluating")
	return cmd
}
