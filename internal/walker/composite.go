package walker

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnresolvedRef is returned when a composite references an unknown id.
var ErrUnresolvedRef = errors.New("unresolved object reference")

// objectDoc is one object of a composite asset:
//
//	objects:
//	  - id: hero
//	    name: Hero
//	    properties: {hp: 10}
//	    children:
//	      - name: Sword
//	      - ref: hero
//
// A child with ref aliases the object declared with that id.
type objectDoc struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Ref        string         `yaml:"ref"`
	Properties map[string]any `yaml:"properties"`
	Children   []objectDoc    `yaml:"children"`
}

type compositeDoc struct {
	Objects []objectDoc `yaml:"objects"`
}

type pendingRef struct {
	owner *Entry
	slot  int
	id    string
}

// parseComposite decodes a composite asset into object entries. References
// are resolved after all declarations are known, so the result may contain
// shared children and cycles.
func parseComposite(data []byte, location string) ([]*Entry, error) {
	var doc compositeDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	declared := make(map[string]*Entry)
	var refs []pendingRef

	var build func(obj objectDoc, index string) *Entry
	build = func(obj objectDoc, index string) *Entry {
		identity := location + "#" + index
		if obj.ID != "" {
			identity = "object:" + obj.ID
		}

		attrs := make(map[string]any, len(obj.Properties)+1)
		for k, v := range obj.Properties {
			attrs[k] = jsonSafe(v)
		}
		if obj.ID != "" {
			attrs["id"] = obj.ID
		}

		e := &Entry{
			Name: objectName(obj, index),
			Ref: ContentRef{
				Kind:     KindObject,
				Identity: identity,
				Location: location,
				Attrs:    attrs,
			},
		}
		if obj.ID != "" {
			if _, dup := declared[obj.ID]; !dup {
				declared[obj.ID] = e
			}
		}

		e.Children = make([]*Entry, len(obj.Children))
		for i, child := range obj.Children {
			childIndex := index + "." + strconv.Itoa(i)
			if child.Ref != "" {
				refs = append(refs, pendingRef{owner: e, slot: i, id: child.Ref})
				continue
			}
			e.Children[i] = build(child, childIndex)
		}
		return e
	}

	roots := make([]*Entry, 0, len(doc.Objects))
	for i, obj := range doc.Objects {
		if obj.Ref != "" {
			return nil, fmt.Errorf("top-level object %d: ref is only valid on children", i)
		}
		roots = append(roots, build(obj, strconv.Itoa(i)))
	}

	for _, r := range refs {
		target, ok := declared[r.id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedRef, r.id)
		}
		r.owner.Children[r.slot] = target
	}

	return roots, nil
}

func objectName(obj objectDoc, index string) string {
	name := obj.Name
	if name == "" {
		name = obj.ID
	}
	if name == "" {
		name = "object-" + index
	}
	return strings.ReplaceAll(name, "/", "_")
}

// jsonSafe rewrites decoded YAML into values encoding/json accepts: mapping
// keys become strings and non-finite floats become their string form.
func jsonSafe(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonSafe(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = jsonSafe(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonSafe(item)
		}
		return out
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return strconv.FormatFloat(val, 'g', -1, 64)
		}
		return val
	default:
		return v
	}
}
