package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"merkle-index/internal/compare"
	"merkle-index/internal/progress"
	"merkle-index/internal/tree"
)

var argCompareFormat string

var compareCmd = &cobra.Command{
	Use:   "compare <tree.json> <directory|tree.json>",
	Short: "Compare a saved snapshot against a directory or another snapshot",
	Long: `Compare a saved snapshot against the current state of a directory, or
against a second snapshot. The published state is not touched.

Exits with 1 when differences are found.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		consumer, err := newConsumer(argCompareFormat, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		oldTree, err := tree.Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load tree: %w", err)
		}
		out := cmd.ErrOrStderr()
		fmt.Fprintf(out, "Loaded saved tree (root: %s...)\n", short(oldTree.RootHash))

		var newSnap *tree.SnapshotNode
		info, err := os.Stat(args[1])
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", args[1], err)
		}
		if info.IsDir() {
			absDirectory, err := filepath.Abs(args[1])
			if err != nil {
				return fmt.Errorf("failed to get absolute path: %w", err)
			}
			fmt.Fprintf(out, "Scanning directory: %s\n", absDirectory)

			// Hashes are only comparable under the snapshot's algorithm
			scanCfg := *cfg
			scanCfg.HashAlgorithm = string(oldTree.Algorithm)
			result, err := scanDirectory(cmd.Context(), absDirectory, &scanCfg, logger, progress.ForTerminal(os.Stderr))
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			newSnap = result.Snapshot
		} else {
			newTree, err := tree.Load(args[1])
			if err != nil {
				return fmt.Errorf("failed to load tree: %w", err)
			}
			if newTree.Algorithm != oldTree.Algorithm {
				return fmt.Errorf("cannot compare %s snapshot with %s snapshot", oldTree.Algorithm, newTree.Algorithm)
			}
			newSnap = newTree.Tree
		}

		changes := compare.Compare(oldTree.Tree, newSnap)
		if err := consumer.Apply(cmd.Context(), changes); err != nil {
			return err
		}
		if len(changes) > 0 {
			exitCode = exitChanges
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringVar(&argCompareFormat, "format", "report", "Change output format (report, jsonl)")
}

func short(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
