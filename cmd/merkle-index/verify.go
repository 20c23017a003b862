package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"merkle-index/internal/tree"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <tree.json>",
	Short: "Recompute every hash of a saved snapshot and report tampering",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serialized, err := tree.Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load tree: %w", err)
		}

		mismatched, err := tree.VerifySnapshot(serialized.Tree, serialized.Algorithm)
		if err != nil {
			return fmt.Errorf("failed to verify tree: %w", err)
		}

		out := cmd.OutOrStdout()
		if serialized.RootHash != serialized.Tree.Hash {
			fmt.Fprintf(out, "✗ Envelope root hash %s does not match tree root %s\n",
				short(serialized.RootHash), short(serialized.Tree.Hash))
			exitCode = exitChanges
		}
		if len(mismatched) > 0 {
			fmt.Fprintf(out, "✗ %d nodes fail verification:\n", len(mismatched))
			for _, p := range mismatched {
				fmt.Fprintf(out, "  ! %s\n", p)
			}
			exitCode = exitChanges
			return nil
		}
		if exitCode == 0 {
			fmt.Fprintf(out, "✓ Snapshot verified\n")
			fmt.Fprintf(out, "  Root hash: %s\n", serialized.RootHash)
			fmt.Fprintf(out, "  Algorithm: %s\n", serialized.Algorithm)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
