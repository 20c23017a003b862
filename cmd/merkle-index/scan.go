package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"merkle-index/internal/compare"
	"merkle-index/internal/config"
	"merkle-index/internal/extract"
	"merkle-index/internal/hash"
	"merkle-index/internal/progress"
	"merkle-index/internal/scanner"
	"merkle-index/internal/store"
	"merkle-index/internal/tree"
	"merkle-index/internal/walker"
)

var (
	argFormat    string
	argNamespace string
	argNoState   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <directory> [output-json-filename]",
	Short: "Scan a directory, publish changes since the last scan and save a snapshot",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		absDirectory, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		consumer, err := newConsumer(argFormat, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		out := cmd.ErrOrStderr()
		fmt.Fprintf(out, "Scanning directory: %s\n", absDirectory)

		result, err := scanDirectory(ctx, absDirectory, cfg, logger, progress.ForTerminal(os.Stderr))
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		// The snapshot is written before any state moves forward, so a
		// failed save leaves the published state untouched.
		rootHash := result.Snapshot.Hash
		outputPath := cfg.OutputFile
		if len(args) == 2 {
			outputPath = args[1]
		}
		if outputPath == "" {
			outputPath = filepath.Join(stateDir(absDirectory, cfg), "snapshots", rootHash+".json")
		}
		if err := tree.Save(result.Tree, outputPath); err != nil {
			return fmt.Errorf("failed to save tree: %w", err)
		}

		var st *store.Store
		if !argNoState {
			storeCfg := store.DefaultConfig(stateDir(absDirectory, cfg))
			storeCfg.Logger = logger
			st, err = store.Open(storeCfg)
			if err != nil {
				return fmt.Errorf("failed to open state: %w", err)
			}
			defer st.Close()
		}

		namespace := argNamespace
		if namespace == "" {
			namespace = absDirectory
		}
		changes, err := publish(ctx, st, namespace, result.Tree, consumer)
		if err != nil {
			return err
		}

		summary := compare.Summarize(changes)
		fmt.Fprintf(out, "✓ Index updated\n")
		fmt.Fprintf(out, "  Root hash: %s\n", rootHash)
		fmt.Fprintf(out, "  Nodes: %d\n", result.Stats.Nodes)
		fmt.Fprintf(out, "  Changes: %d added, %d updated, %d removed\n",
			summary.Added, summary.Updated, summary.Removed)
		fmt.Fprintf(out, "  Output: %s\n", outputPath)
		if result.Stats.ExtractFailures+result.Stats.ResolveFailures > 0 {
			fmt.Fprintf(out, "\n⚠ %d entries indexed without content due to errors\n",
				result.Stats.ExtractFailures+result.Stats.ResolveFailures)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&argFormat, "format", "report", "Change output format (report, jsonl)")
	scanCmd.Flags().StringVar(&argNamespace, "namespace", "", "State namespace (defaults to the absolute directory)")
	scanCmd.Flags().BoolVar(&argNoState, "no-state", false, "Diff against nothing and do not persist the published state")
}

func newConsumer(format string, w io.Writer) (compare.Consumer, error) {
	switch format {
	case "report":
		return compare.NewReportConsumer(w), nil
	case "jsonl":
		return compare.NewJSONLinesConsumer(w), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// stateDir resolves the configured state directory; relative paths live
// inside the scanned directory.
func stateDir(directory string, c *config.Config) string {
	if filepath.IsAbs(c.StateDir) {
		return c.StateDir
	}
	return filepath.Join(directory, c.StateDir)
}

// stateExclusions keeps the state directory out of its own scans.
func stateExclusions(directory string, c *config.Config) []string {
	rel, err := filepath.Rel(directory, stateDir(directory, c))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	return []string{filepath.ToSlash(filepath.Base(rel)) + "/"}
}

// scanDirectory runs a full scan of directory, ticking the scanner on one
// goroutine while another waits for the result.
func scanDirectory(ctx context.Context, directory string, c *config.Config, l *slog.Logger, observer scanner.Observer) (*scanner.Result, error) {
	exclude := append(append([]string(nil), c.Exclude...), stateExclusions(directory, c)...)
	repo, err := walker.NewFS(directory,
		walker.WithExclusions(exclude...),
		walker.WithCompositeExtensions(c.CompositeExtensions...),
		walker.WithLogger(l),
	)
	if err != nil {
		return nil, err
	}

	opts := []scanner.Option{
		scanner.WithBatchSizes(c.BatchSizes()),
		scanner.WithAlgorithm(hash.Algorithm(c.HashAlgorithm)),
		scanner.WithLogger(l),
	}
	if observer != nil {
		opts = append(opts, scanner.WithObserver(observer))
	}
	sc := scanner.New(repo, extract.DefaultRegistry(), opts...)

	done, err := sc.Start(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scanner.Run(gctx, sc, c.TickInterval)
	})

	var result *scanner.Result
	g.Go(func() error {
		r, err := done.Wait(gctx)
		result = r
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// publish diffs t against the state saved in st, hands the changes to
// consumer and, once they are applied, saves the new state. A nil store
// diffs against an empty state. When the root hash matches the one last
// published the diff is skipped and the consumer gets an empty change set.
func publish(ctx context.Context, st *store.Store, namespace string, t *tree.Tree, consumer compare.Consumer) ([]compare.NodeChange, error) {
	rootHash := t.RootHash()
	stable := compare.NewStableMap()
	if st != nil {
		previous, err := st.Root(ctx, namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to load root: %w", err)
		}
		if previous == rootHash {
			slog.Info("tree unchanged since last publish",
				slog.String("namespace", namespace),
				slog.String("root_hash", rootHash),
			)
			if err := consumer.Apply(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to apply changes: %w", err)
			}
			return nil, nil
		}

		loaded, err := st.Load(ctx, namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to load state: %w", err)
		}
		stable = loaded
	}

	engine := compare.NewEngine(stable, compare.WithLogger(logger))
	changes := engine.Diff(ctx, t)
	if err := consumer.Apply(ctx, changes); err != nil {
		return nil, fmt.Errorf("failed to apply changes: %w", err)
	}

	if st != nil {
		if err := st.Save(ctx, namespace, engine.Stable()); err != nil {
			return nil, fmt.Errorf("failed to save state: %w", err)
		}
		if err := st.SetRoot(ctx, namespace, rootHash); err != nil {
			return nil, fmt.Errorf("failed to save root: %w", err)
		}
	}
	return changes, nil
}
