package dispatch

import (
	"strings"

	"github.com/scenewire/scenewire/pkg/scene"
)

// FieldValueFunc extracts one reportable value from a mesh context.
// The model and index are passed so selection-dependent fields can be
// computed.
type FieldValueFunc func(m *scene.Model, index int, ctx *scene.MeshContext) any

// DefaultMeshFields is the field set used when a request names none.
var DefaultMeshFields = []string{
	"name", "type", "vertexCount", "faceCount", "visible", "locked", "selected",
}

// FieldRegistry maps field names to extractors. Lookup is
// case-insensitive; registration order fixes the canonical order
// reported by availableFields. Register everything before serving;
// the registry is read concurrently afterwards.
type FieldRegistry struct {
	names []string
	funcs map[string]FieldValueFunc
}

func newFieldRegistry() *FieldRegistry {
	r := &FieldRegistry{funcs: make(map[string]FieldValueFunc, 16)}

	r.Register("name", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return ctx.Name
	})
	r.Register("type", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return ctx.Type.String()
	})
	r.Register("vertexCount", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return ctx.Mesh.VertexCount()
	})
	r.Register("faceCount", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return ctx.Mesh.FaceCount()
	})
	r.Register("visible", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return ctx.Visible
	})
	r.Register("locked", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return ctx.Locked
	})
	r.Register("selected", func(m *scene.Model, index int, _ *scene.MeshContext) any {
		return m.IsSelected(index)
	})
	r.Register("depth", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return int(ctx.Depth)
	})
	r.Register("parent", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return int(ctx.Parent)
	})
	r.Register("mirrorMode", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return ctx.MirrorMode.String()
	})
	r.Register("mirrorAxis", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return int(ctx.MirrorAxis)
	})
	r.Register("morph", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return ctx.HasMorph
	})
	r.Register("bone", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return ctx.HasBone
	})
	r.Register("ik", func(_ *scene.Model, _ int, ctx *scene.MeshContext) any {
		return ctx.HasIK
	})
	return r
}

// Register adds a field under its canonical name. Re-registering an
// existing name replaces its extractor and keeps its position.
func (r *FieldRegistry) Register(name string, fn FieldValueFunc) {
	key := strings.ToLower(name)
	if _, exists := r.funcs[key]; !exists {
		r.names = append(r.names, name)
	}
	r.funcs[key] = fn
}

// Names returns the canonical field names in registration order.
func (r *FieldRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Resolve maps requested names to extractors. Unknown names are
// skipped so a newer client asking for fields this host lacks still
// gets the rest. An empty request resolves to DefaultMeshFields.
// Returned names are canonical regardless of request casing.
func (r *FieldRegistry) Resolve(requested []string) ([]string, []FieldValueFunc) {
	if len(requested) == 0 {
		requested = DefaultMeshFields
	}
	names := make([]string, 0, len(requested))
	funcs := make([]FieldValueFunc, 0, len(requested))
	for _, want := range requested {
		key := strings.ToLower(want)
		fn, ok := r.funcs[key]
		if !ok {
			continue
		}
		names = append(names, r.canonical(key))
		funcs = append(funcs, fn)
	}
	return names, funcs
}

func (r *FieldRegistry) canonical(lower string) string {
	for _, n := range r.names {
		if strings.ToLower(n) == lower {
			return n
		}
	}
	return lower
}

// row builds one mesh's field map.
func row(names []string, funcs []FieldValueFunc, m *scene.Model, index int, ctx *scene.MeshContext) map[string]any {
	out := make(map[string]any, len(names))
	for i, name := range names {
		out[name] = funcs[i](m, index, ctx)
	}
	return out
}
