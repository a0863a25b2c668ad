package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/gitfold/internal/enrich"
	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/search"
	"github.com/zjrosen/gitfold/internal/vcs"
)

type printOptions struct {
	// Limit caps the rows written; zero writes the whole range.
	Limit     int
	UnfoldAll bool
	// Find starts output at the first row matching this needle.
	Find string
}

var printFlags printOptions

var printCmd = &cobra.Command{
	Use:   "print [<revision-range>] [-- <path>...]",
	Short: "Write the folded history to stdout",
	Long:  "Write the folded history as plain text, one row per line. This is also what gitfold does when stdout is not a terminal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rng, paths, err := splitArgs(args, cmd.ArgsLenAtDash())
		if err != nil {
			return err
		}
		return printHistory(cmd, rng, paths, printFlags)
	},
}

func init() {
	printCmd.Flags().IntVarP(&printFlags.Limit, "max-count", "n", 0, "limit the number of rows (0 for all)")
	printCmd.Flags().BoolVar(&printFlags.UnfoldAll, "unfold-all", false, "unfold every merge")
	printCmd.Flags().StringVar(&printFlags.Find, "find", "", "start at the first row matching this text")
}

func printHistory(cmd *cobra.Command, rng string, paths []string, opts printOptions) error {
	cleanup, err := setupLogging()
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, _, err := loadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, sessionOptions{
		Config:  cfg,
		Repo:    repoDir,
		Range:   rng,
		Paths:   paths,
		NoCache: noCache,
		Debug:   debugEnabled(),
	})
	if err != nil {
		return err
	}
	defer s.Close()
	defer s.engine.Close()
	defer s.enricher.Close()

	return writeHistory(ctx, cmd.OutOrStdout(), s.hist, s.engine, resolvingDecorator{ctx: ctx, e: s.enricher}, opts)
}

// writeHistory renders rows of hist to w, extending the model as it goes.
func writeHistory(ctx context.Context, w io.Writer, hist *history.Model, engine *search.Engine, dec history.Decorator, opts printOptions) error {
	start := 0
	if opts.Find != "" {
		pos, err := find(ctx, hist, engine, opts.Find)
		if err != nil {
			return err
		}
		start = pos
	}

	bw := bufio.NewWriter(w)
	rowOpts := history.RowOptions{DateFormat: history.DateShort, Decorator: dec, ShowModules: true}
	written := 0
	for pos := start; opts.Limit <= 0 || written < opts.Limit; pos++ {
		if pos >= hist.Len() {
			if hist.Exhausted() {
				break
			}
			added, err := hist.Extend(ctx, hist.Config().PageSize)
			if err != nil {
				return err
			}
			if added == 0 {
				break
			}
		}

		if opts.UnfoldAll {
			if err := unfoldAt(ctx, hist, pos); err != nil {
				return err
			}
		}

		row, err := hist.Row(ctx, pos, rowOpts)
		if err != nil {
			return fmt.Errorf("rendering row %d: %w", pos, err)
		}
		if _, err := fmt.Fprintln(bw, row.String()); err != nil {
			return err
		}
		written++
	}
	return bw.Flush()
}

func unfoldAt(ctx context.Context, hist *history.Model, pos int) error {
	n, err := hist.Node(pos)
	if err != nil {
		return err
	}
	if n.Fold != history.Folded {
		return nil
	}
	if err := hist.Unfold(ctx, pos); err != nil && !errors.Is(err, history.ErrNotFoldable) {
		return fmt.Errorf("unfolding %s: %w", n.ID.Short(), err)
	}
	return nil
}

// find runs a forward search from the top and returns the matching row.
func find(ctx context.Context, hist *history.Model, engine *search.Engine, needle string) (int, error) {
	task := engine.Start(ctx, hist, search.Request{Needle: needle, Direction: search.Forward, IncludeCurrent: true})
	res, err := search.Drive(task, func(n int) (int, error) {
		return hist.Extend(ctx, n)
	})
	if err != nil {
		return 0, err
	}
	if res.Status != search.StatusFound {
		return 0, fmt.Errorf("%q: %w", needle, search.ErrNotFound)
	}
	return res.Pos, nil
}

// resolvingDecorator annotates each commit synchronously before it is
// printed.
type resolvingDecorator struct {
	ctx context.Context
	e   *enrich.Enricher
}

func (d resolvingDecorator) Subject(id vcs.CommitID, md vcs.Metadata) (string, string) {
	d.resolve(id)
	return d.e.Subject(id, md)
}

func (d resolvingDecorator) Modules(id vcs.CommitID) []string {
	d.resolve(id)
	return d.e.Modules(id)
}

// resolve falls back to the raw subject on failure.
func (d resolvingDecorator) resolve(id vcs.CommitID) {
	_, _ = d.e.Resolve(d.ctx, id)
}
