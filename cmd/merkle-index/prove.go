package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"merkle-index/internal/hash"
	"merkle-index/internal/tree"
)

var argCheck bool

// signedProof records the algorithm next to the proof. Checking still needs
// the snapshot, whose content root anchors the proof.
type signedProof struct {
	Algorithm hash.Algorithm `json:"algorithm"`
	*tree.Proof
}

var proveCmd = &cobra.Command{
	Use:   "prove <tree.json> <path> | prove --check <tree.json> <proof.json>",
	Short: "Produce or check an inclusion proof for one content node",
	Long: `Produce an inclusion proof for one content node of a saved snapshot, or
check a proof against the content root recorded in a snapshot.

With --check, exits with 1 when the proof does not verify.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		serialized, err := tree.Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load tree: %w", err)
		}
		out := cmd.OutOrStdout()

		if argCheck {
			ok, p, err := checkProof(serialized, args[1])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(out, "✗ Proof for %s does not match content root %s\n", p.Path, short(serialized.ContentRoot))
				exitCode = exitChanges
				return nil
			}
			fmt.Fprintf(out, "✓ %s is included under content root %s\n", p.Path, short(serialized.ContentRoot))
			return nil
		}

		p, err := tree.BuildProof(serialized.Tree, serialized.Algorithm, args[1])
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(signedProof{Algorithm: serialized.Algorithm, Proof: p}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal proof: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(proveCmd)
	proveCmd.Flags().BoolVar(&argCheck, "check", false, "Check a proof file instead of producing one")
}

// checkProof verifies the proof file at path against the content root
// published in serialized.
func checkProof(serialized *tree.SerializedTree, path string) (bool, *tree.Proof, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, nil, fmt.Errorf("failed to read proof: %w", err)
	}
	var p signedProof
	if err := json.Unmarshal(data, &p); err != nil {
		return false, nil, fmt.Errorf("failed to parse proof: %w", err)
	}
	if p.Proof == nil {
		return false, nil, fmt.Errorf("failed to parse proof: %s is empty", path)
	}
	if p.Algorithm != serialized.Algorithm {
		return false, p.Proof, nil
	}

	ok, err := tree.VerifyProof(p.Proof, serialized.Algorithm, serialized.ContentRoot)
	if err != nil {
		return false, nil, fmt.Errorf("failed to verify proof: %w", err)
	}
	return ok, p.Proof, nil
}
