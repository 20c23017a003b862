package compare

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"merkle-index/internal/tree"
)

func add(t *testing.T, tr *tree.Tree, p string, isDir bool, doc tree.Document) {
	t.Helper()
	n, err := tr.AddNode(p, isDir)
	if err != nil {
		t.Fatalf("AddNode(%s) failed: %v", p, err)
	}
	if doc != nil {
		if err := tr.SetMetadata(n, doc); err != nil {
			t.Fatalf("SetMetadata(%s) failed: %v", p, err)
		}
	}
}

// sample builds R/{a, b, d/c}.
func sample(t *testing.T) *tree.Tree {
	t.Helper()
	tr := tree.New(".")
	add(t, tr, "a", false, tree.Document{"v": 1})
	add(t, tr, "b", false, tree.Document{"v": 2})
	add(t, tr, "d", true, nil)
	add(t, tr, "d/c", false, tree.Document{"v": 3})
	return tr
}

func TestDiff_FirstRunAddsEverything(t *testing.T) {
	tr := sample(t)
	e := NewEngine(nil)

	changes := e.Diff(context.Background(), tr)
	if len(changes) != 3 {
		t.Fatalf("Expected 3 changes, got %d: %v", len(changes), changes)
	}
	for i, want := range []string{"a", "b", "d/c"} {
		if changes[i].Type != Added || changes[i].Path != want {
			t.Errorf("change %d = %+v, want ADDED %s", i, changes[i], want)
		}
		if changes[i].NewID != tr.GetNode(want).Hash() {
			t.Errorf("change %d carries the wrong id", i)
		}
	}
	if e.Stable().Len() != 3 {
		t.Errorf("Stable map should hold 3 entries, got %d", e.Stable().Len())
	}
}

func TestDiff_Idempotent(t *testing.T) {
	tr := sample(t)
	e := NewEngine(nil)
	e.Diff(context.Background(), tr)

	if changes := e.Diff(context.Background(), tr); len(changes) != 0 {
		t.Errorf("Second diff should be empty, got %v", changes)
	}
}

func TestDiff_ScenarioA_Update(t *testing.T) {
	tr := sample(t)
	e := NewEngine(nil)
	e.Diff(context.Background(), tr)
	oldID := tr.GetNode("a").Hash()

	if err := tr.UpdateNodeMetadata("a", tree.Document{"v": 100}); err != nil {
		t.Fatalf("UpdateNodeMetadata failed: %v", err)
	}

	changes := e.Diff(context.Background(), tr)
	if len(changes) != 1 {
		t.Fatalf("Expected 1 change, got %v", changes)
	}
	c := changes[0]
	if c.Type != Updated || c.Path != "a" || c.OldID != oldID || c.NewID != tr.GetNode("a").Hash() {
		t.Errorf("Unexpected change %+v", c)
	}
	if id, _ := e.Stable().ID("a"); id != c.NewID {
		t.Error("Stable map should record the new id")
	}
}

func TestDiff_ScenarioC_Remove(t *testing.T) {
	tr := sample(t)
	e := NewEngine(nil)
	e.Diff(context.Background(), tr)
	oldID := tr.GetNode("b").Hash()

	tr.RemoveNode("b")

	changes := e.Diff(context.Background(), tr)
	if len(changes) != 1 {
		t.Fatalf("Expected 1 change, got %v", changes)
	}
	if changes[0] != (NodeChange{Type: Removed, Path: "b", OldID: oldID}) {
		t.Errorf("Unexpected change %+v", changes[0])
	}
	if _, ok := e.Stable().ID("b"); ok {
		t.Error("Removed path should leave the stable map")
	}
}

func TestDiff_RemovedDirectoryRemovesDescendants(t *testing.T) {
	tr := sample(t)
	e := NewEngine(nil)
	e.Diff(context.Background(), tr)

	tr.RemoveNode("d")

	changes := e.Diff(context.Background(), tr)
	if len(changes) != 1 || changes[0].Type != Removed || changes[0].Path != "d/c" {
		t.Errorf("Expected REMOVED d/c, got %v", changes)
	}
}

func TestDiff_OrderAddsBeforeRemovals(t *testing.T) {
	tr := sample(t)
	e := NewEngine(nil)
	e.Diff(context.Background(), tr)

	tr.RemoveNode("a")
	add(t, tr, "z", false, tree.Document{"v": 26})
	if err := tr.UpdateNodeMetadata("b", tree.Document{"v": 22}); err != nil {
		t.Fatalf("UpdateNodeMetadata failed: %v", err)
	}

	changes := e.Diff(context.Background(), tr)
	var got []string
	for _, c := range changes {
		got = append(got, string(c.Type)+" "+c.Path)
	}
	want := "UPDATED b,ADDED z,REMOVED a"
	if strings.Join(got, ",") != want {
		t.Errorf("Order = %v, want %s", got, want)
	}
}

func TestDiff_ContentlessNodeKeepsMapping(t *testing.T) {
	tr := sample(t)
	e := NewEngine(nil)
	e.Diff(context.Background(), tr)
	oldID := tr.GetNode("a").Hash()

	if err := tr.UpdateNodeMetadata("a", nil); err != nil {
		t.Fatalf("UpdateNodeMetadata failed: %v", err)
	}
	if changes := e.Diff(context.Background(), tr); len(changes) != 0 {
		t.Errorf("Losing content should not publish a change, got %v", changes)
	}
	if id, _ := e.Stable().ID("a"); id != oldID {
		t.Error("Contentless node should keep its published id")
	}

	if err := tr.UpdateNodeMetadata("a", tree.Document{"v": 7}); err != nil {
		t.Fatalf("UpdateNodeMetadata failed: %v", err)
	}
	changes := e.Diff(context.Background(), tr)
	if len(changes) != 1 || changes[0].Type != Updated || changes[0].OldID != oldID {
		t.Errorf("Recovered content should report UPDATED, got %v", changes)
	}
}

func TestDiff_FileReplacedByDirectory(t *testing.T) {
	tr := sample(t)
	e := NewEngine(nil)
	e.Diff(context.Background(), tr)

	tr.RemoveNode("a")
	add(t, tr, "a", true, nil)

	changes := e.Diff(context.Background(), tr)
	if len(changes) != 1 || changes[0].Type != Removed || changes[0].Path != "a" {
		t.Errorf("Expected REMOVED a, got %v", changes)
	}
}

func TestDiff_FreshTreeSameContent(t *testing.T) {
	e := NewEngine(nil)
	e.Diff(context.Background(), sample(t))

	if changes := e.Diff(context.Background(), sample(t)); len(changes) != 0 {
		t.Errorf("Rescanned identical content should produce no changes, got %v", changes)
	}
}

func TestNewEngine_RestoredState(t *testing.T) {
	tr := sample(t)
	first := NewEngine(nil)
	first.Diff(context.Background(), tr)

	restored := NewEngine(first.Stable())
	if changes := restored.Diff(context.Background(), tr); len(changes) != 0 {
		t.Errorf("Restored engine should see no changes, got %v", changes)
	}
}

func TestEngine_StableIsACopy(t *testing.T) {
	e := NewEngine(nil)
	e.Diff(context.Background(), sample(t))

	s := e.Stable()
	s.Delete("a")
	if _, ok := e.Stable().ID("a"); !ok {
		t.Error("Mutating the returned map must not affect the engine")
	}
}

func TestStableMap(t *testing.T) {
	m := NewStableMap()
	m.Put("h1", "a")
	m.Put("h2", "b")
	m.Put("h3", "a")

	if id, _ := m.ID("a"); id != "h3" {
		t.Errorf("ID(a) = %s, want h3", id)
	}
	if _, ok := m.Path("h1"); ok {
		t.Error("Replaced id should be dropped")
	}
	if p, _ := m.Path("h2"); p != "b" {
		t.Errorf("Path(h2) = %s, want b", p)
	}
	entries := m.Entries()
	if len(entries) != 2 || entries[0].Path != "a" || entries[1].Path != "b" {
		t.Errorf("Entries = %v", entries)
	}
}

func TestCompareSnapshots(t *testing.T) {
	oldTree := sample(t)
	oldSnap := oldTree.Snapshot()

	newTree := sample(t)
	newTree.RemoveNode("b")
	add(t, newTree, "e", false, tree.Document{"v": 5})
	if err := newTree.UpdateNodeMetadata("d/c", tree.Document{"v": 33}); err != nil {
		t.Fatalf("UpdateNodeMetadata failed: %v", err)
	}

	changes := Compare(oldSnap, newTree.Snapshot())
	s := Summarize(changes)
	if s.Added != 1 || s.Updated != 1 || s.Removed != 1 {
		t.Fatalf("Unexpected summary %+v: %v", s, changes)
	}
	if changes[0].Path != "d/c" || changes[1].Path != "e" || changes[2].Path != "b" {
		t.Errorf("Unexpected order: %v", changes)
	}

	if changes := Compare(oldSnap, oldSnap); len(changes) != 0 {
		t.Errorf("Identical snapshots should not differ, got %v", changes)
	}
	if changes := Compare(nil, oldSnap); len(changes) != 3 {
		t.Errorf("Comparing against nothing should add every content node, got %v", changes)
	}
}

func TestFormatReport(t *testing.T) {
	if got := FormatReport(nil); got != "No changes detected." {
		t.Errorf("Empty report = %q", got)
	}

	report := FormatReport([]NodeChange{
		{Type: Added, Path: "new.png", NewID: "0123456789abcdef"},
		{Type: Updated, Path: "mod.png", OldID: "aaaa", NewID: "bbbb"},
		{Type: Removed, Path: "old.png", OldID: "cccc"},
	})
	for _, want := range []string{
		"ADDED (1 nodes)",
		"+ new.png (id: 0123456789ab)",
		"~ mod.png (id: aaaa -> bbbb)",
		"- old.png (id: cccc)",
		"Summary: 1 added, 1 updated, 1 removed",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("Report missing %q:\n%s", want, report)
		}
	}
}

func TestJSONLinesConsumer(t *testing.T) {
	var buf bytes.Buffer
	c := NewJSONLinesConsumer(&buf)
	changes := []NodeChange{
		{Type: Added, Path: "a", NewID: "1"},
		{Type: Removed, Path: "b", OldID: "2"},
	}
	if err := c.Apply(context.Background(), changes); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	var got NodeChange
	if err := json.Unmarshal([]byte(lines[1]), &got); err != nil {
		t.Fatalf("Invalid JSON line: %v", err)
	}
	if got != changes[1] {
		t.Errorf("Decoded %+v, want %+v", got, changes[1])
	}
	if strings.Contains(lines[0], "old_id") {
		t.Errorf("Empty ids should be omitted: %s", lines[0])
	}
}
