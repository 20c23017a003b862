package walker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

const heroPrefab = `objects:
  - id: hero
    name: Hero
    properties:
      hp: 10
    children:
      - name: Body
        properties:
          mesh: body.obj
      - ref: sword
      - ref: hero
  - id: sword
    name: Sword
    properties:
      damage: 4
`

func TestResolve_CompositeParsesObjects(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{"actors/hero.prefab": heroPrefab})

	repo, err := NewFS(tmpDir)
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}

	entry, err := repo.Resolve(context.Background(), "actors/hero.prefab")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if entry.Ref.Kind != KindComposite || !entry.Hierarchical() {
		t.Fatalf("Expected a composite, got %s", entry.Ref.Kind)
	}
	if entry.Ref.Attrs["objects"] != 2 {
		t.Errorf("Expected 2 top-level objects, got %v", entry.Ref.Attrs["objects"])
	}

	hero, sword := entry.Children[0], entry.Children[1]
	if hero.Name != "Hero" || hero.Ref.Identity != "object:hero" {
		t.Errorf("Unexpected hero entry: %+v", hero.Ref)
	}
	if hero.Ref.Attrs["hp"] != 10 {
		t.Errorf("Expected hp=10, got %v", hero.Ref.Attrs["hp"])
	}
	if len(hero.Children) != 3 {
		t.Fatalf("Expected 3 hero children, got %d", len(hero.Children))
	}

	body := hero.Children[0]
	if body.Name != "Body" || body.Ref.Kind != KindObject {
		t.Errorf("Unexpected body entry: %+v", body)
	}
	if hero.Children[1] != sword {
		t.Error("ref: sword should alias the declared sword entry")
	}
	if hero.Children[2] != hero {
		t.Error("ref: hero should point back at its ancestor")
	}
}

func TestParseComposite_AnonymousObjectsGetPositionalIdentity(t *testing.T) {
	data := []byte("objects:\n  - properties: {a: 1}\n  - properties: {a: 2}\n")

	entries, err := parseComposite(data, "/repo/x.scene")
	if err != nil {
		t.Fatalf("parseComposite failed: %v", err)
	}
	if entries[0].Ref.Identity == entries[1].Ref.Identity {
		t.Error("Anonymous objects need distinct identities")
	}
	if entries[0].Name != "object-0" {
		t.Errorf("Expected positional name, got %s", entries[0].Name)
	}
}

func TestParseComposite_Errors(t *testing.T) {
	if _, err := parseComposite([]byte("objects:\n  - name: A\n    children:\n      - ref: nope\n"), "/x"); !errors.Is(err, ErrUnresolvedRef) {
		t.Errorf("Expected ErrUnresolvedRef, got %v", err)
	}
	if _, err := parseComposite([]byte("objects: [\n"), "/x"); err == nil {
		t.Error("Malformed YAML should fail")
	}
	if _, err := parseComposite([]byte("objects:\n  - ref: a\n"), "/x"); err == nil {
		t.Error("Top-level refs should fail")
	}
}

func TestParseComposite_NamesAreSanitised(t *testing.T) {
	entries, err := parseComposite([]byte("objects:\n  - name: a/b\n"), "/x")
	if err != nil {
		t.Fatalf("parseComposite failed: %v", err)
	}
	if entries[0].Name != "a_b" {
		t.Errorf("Expected a_b, got %s", entries[0].Name)
	}
}

func TestParseComposite_PropertiesAreJSONSafe(t *testing.T) {
	data := []byte(`objects:
  - id: hero
    properties:
      stats: {1: strong, 2: fast}
      speed: .nan
      limits: [.inf, -.inf, 3.5]
`)
	entries, err := parseComposite(data, "hero.prefab")
	if err != nil {
		t.Fatalf("parseComposite failed: %v", err)
	}

	attrs := entries[0].Ref.Attrs
	if _, err := json.Marshal(attrs); err != nil {
		t.Fatalf("Attributes should encode as JSON: %v", err)
	}

	stats, ok := attrs["stats"].(map[string]any)
	if !ok || stats["1"] != "strong" || stats["2"] != "fast" {
		t.Errorf("Expected string-keyed stats, got %#v", attrs["stats"])
	}
	if attrs["speed"] != "NaN" {
		t.Errorf("Expected NaN as a string, got %#v", attrs["speed"])
	}
	limits, ok := attrs["limits"].([]any)
	if !ok || len(limits) != 3 || limits[0] != "+Inf" || limits[1] != "-Inf" || limits[2] != 3.5 {
		t.Errorf("Unexpected limits %#v", attrs["limits"])
	}
}
