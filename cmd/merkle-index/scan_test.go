package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"merkle-index/internal/compare"
	"merkle-index/internal/config"
	"merkle-index/internal/store"
	"merkle-index/internal/tree"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
}

func TestScanAndPublish(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "textures/rock.png", "rock")
	writeFile(t, dir, "readme.md", "hello")

	c := config.DefaultConfig()
	c.TickInterval = 0
	ctx := context.Background()

	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer st.Close()

	run := func() []compare.NodeChange {
		t.Helper()
		result, err := scanDirectory(ctx, dir, c, nil, nil)
		if err != nil {
			t.Fatalf("scanDirectory failed: %v", err)
		}
		var buf bytes.Buffer
		changes, err := publish(ctx, st, "test", result.Tree, compare.NewJSONLinesConsumer(&buf))
		if err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		if got := strings.Count(buf.String(), "\n"); got != len(changes) {
			t.Errorf("Consumer wrote %d lines for %d changes", got, len(changes))
		}
		return changes
	}

	if s := compare.Summarize(run()); s.Added != 2 || s.Total() != 2 {
		t.Errorf("First scan should add 2 nodes, got %+v", s)
	}
	if changes := run(); len(changes) != 0 {
		t.Errorf("Unchanged directory should publish nothing, got %v", changes)
	}

	writeFile(t, dir, "readme.md", "hello, world")
	if err := os.Remove(filepath.Join(dir, "textures", "rock.png")); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	changes := run()
	if len(changes) != 2 ||
		changes[0] != (compare.NodeChange{Type: compare.Updated, Path: "readme.md", OldID: changes[0].OldID, NewID: changes[0].NewID}) ||
		changes[1].Type != compare.Removed || changes[1].Path != "textures/rock.png" {
		t.Errorf("Unexpected changes %v", changes)
	}
}

func TestStateDirectoryIsNotScanned(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "a")
	writeFile(t, dir, ".merkle-index/snapshots/old.json", "{}")

	result, err := scanDirectory(context.Background(), dir, config.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("scanDirectory failed: %v", err)
	}
	if result.Tree.GetNode(".merkle-index") != nil {
		t.Error("State directory should be excluded")
	}
	if result.Tree.GetNode("a.txt") == nil {
		t.Error("a.txt should be scanned")
	}
}

func TestNewConsumer(t *testing.T) {
	for _, format := range []string{"report", "jsonl"} {
		if _, err := newConsumer(format, &bytes.Buffer{}); err != nil {
			t.Errorf("newConsumer(%s) failed: %v", format, err)
		}
	}
	if _, err := newConsumer("xml", &bytes.Buffer{}); err == nil {
		t.Error("Unknown format should fail")
	}
}

func TestPublish_SkipsDiffWhenRootUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.md", "hello")
	writeFile(t, dir, "rock.png", "rock")

	ctx := context.Background()
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer st.Close()

	result, err := scanDirectory(ctx, dir, config.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("scanDirectory failed: %v", err)
	}
	if _, err := publish(ctx, st, "test", result.Tree, compare.NewJSONLinesConsumer(&bytes.Buffer{})); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	root, err := st.Root(ctx, "test")
	if err != nil || root != result.Snapshot.Hash {
		t.Fatalf("Expected stored root %s, got %s (%v)", result.Snapshot.Hash, root, err)
	}

	// Emptied state would report everything as added if the diff ran.
	if err := st.Save(ctx, "test", compare.NewStableMap()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	var report bytes.Buffer
	changes, err := publish(ctx, st, "test", result.Tree, compare.NewReportConsumer(&report))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("Unchanged root should skip the diff, got %v", changes)
	}
	if !strings.Contains(report.String(), "No changes detected.") {
		t.Errorf("Consumer should still receive an empty change set, got %q", report.String())
	}
}

func TestScan_CompositeWithOddValuesSaves(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hero.prefab", `objects:
  - id: hero
    name: Hero
    properties:
      stats: {1: strong, 2: fast}
      speed: .nan
      reach: .inf
`)

	result, err := scanDirectory(context.Background(), dir, config.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("scanDirectory failed: %v", err)
	}
	if result.Stats.ExtractFailures != 0 {
		t.Errorf("Expected no extract failures, got %d", result.Stats.ExtractFailures)
	}
	if err := tree.Save(result.Tree, filepath.Join(t.TempDir(), "tree.json")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestScan_NonUTF8NamesDoNotBreakVerify(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.txt", "g")
	if err := os.WriteFile(filepath.Join(dir, "bad\xff.txt"), []byte("b"), 0644); err != nil {
		t.Skipf("filesystem rejects non UTF-8 names: %v", err)
	}

	result, err := scanDirectory(context.Background(), dir, config.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("scanDirectory failed: %v", err)
	}
	out := filepath.Join(t.TempDir(), "tree.json")
	if err := tree.Save(result.Tree, out); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := tree.Load(out)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	bad, err := tree.VerifySnapshot(loaded.Tree, loaded.Algorithm)
	if err != nil {
		t.Fatalf("VerifySnapshot failed: %v", err)
	}
	if len(bad) != 0 {
		t.Errorf("Expected a clean round trip, got mismatches %q", bad)
	}
}
