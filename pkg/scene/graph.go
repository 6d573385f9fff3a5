package scene

import (
	"errors"
	"fmt"
)

var (
	// ErrMeshIndex is returned when a mesh index does not resolve in
	// the current model.
	ErrMeshIndex = errors.New("scene: mesh index out of range")
	// ErrNoModel is returned when an operation needs a current model
	// and the project has none.
	ErrNoModel = errors.New("scene: no current model")
	// ErrVertexCount is returned when a positions-only update does not
	// match the target mesh's vertex count.
	ErrVertexCount = errors.New("scene: vertex count mismatch")
)

// EventKind enumerates graph change notifications.
type EventKind uint8

const (
	// EventMeshList fires when the current model's mesh list changes
	// shape: a context added, removed or wholly replaced.
	EventMeshList EventKind = iota
	// EventMeshUpdated fires when a single mesh context changes in
	// place, attributes or geometry.
	EventMeshUpdated
	// EventSelection fires when the current model's selection changes.
	EventSelection
)

func (k EventKind) String() string {
	switch k {
	case EventMeshList:
		return "meshList"
	case EventMeshUpdated:
		return "meshUpdated"
	case EventSelection:
		return "selection"
	default:
		return fmt.Sprintf("eventkind(%d)", uint8(k))
	}
}

// Event describes one graph change. Index is the affected mesh context
// index for EventMeshUpdated and EventSelection, and -1 otherwise.
type Event struct {
	Kind  EventKind
	Index int
}

// AttributeUpdate carries the mutable flat attributes of a mesh
// context. Nil fields are left untouched.
type AttributeUpdate struct {
	Name    *string
	Visible *bool
	Locked  *bool
}

// Graph owns a project and its image list and notifies subscribers of
// changes. It must only be used from the goroutine that owns it.
type Graph struct {
	project *Project
	images  []*Image
	subs    []func(Event)
}

// NewGraph returns a graph holding an untitled project with one empty
// model, the state of the editor before anything is loaded.
func NewGraph() *Graph {
	return &Graph{
		project: &Project{
			Name:   "Untitled",
			Models: []*Model{{Name: "Model 1"}},
		},
	}
}

// Subscribe registers fn to be called synchronously for every graph
// change. Subscriptions cannot be removed; the graph lives as long as
// its host.
func (g *Graph) Subscribe(fn func(Event)) {
	g.subs = append(g.subs, fn)
}

func (g *Graph) notify(ev Event) {
	for _, fn := range g.subs {
		fn(ev)
	}
}

// Project returns the live project. Callers must not retain it across
// host ticks.
func (g *Graph) Project() *Project { return g.project }

// Load replaces the whole project and announces a mesh list change.
func (g *Graph) Load(p *Project) {
	g.project = p
	g.notify(Event{Kind: EventMeshList, Index: -1})
}

// CurrentModel returns the project's current model, or nil.
func (g *Graph) CurrentModel() *Model { return g.project.Current() }

// MeshCount reports the number of mesh contexts in the current model.
func (g *Graph) MeshCount() int {
	m := g.CurrentModel()
	if m == nil {
		return 0
	}
	return len(m.MeshContextList)
}

// MeshAt resolves a mesh context index in the current model.
func (g *Graph) MeshAt(index int) (*MeshContext, bool) {
	m := g.CurrentModel()
	if m == nil || index < 0 || index >= len(m.MeshContextList) {
		return nil, false
	}
	return m.MeshContextList[index], true
}

// AddMesh appends a context to the current model and returns its
// index.
func (g *Graph) AddMesh(ctx *MeshContext) (int, error) {
	m := g.CurrentModel()
	if m == nil {
		return 0, ErrNoModel
	}
	m.MeshContextList = append(m.MeshContextList, ctx)
	index := len(m.MeshContextList) - 1
	g.notify(Event{Kind: EventMeshList, Index: index})
	return index, nil
}

// SelectMesh replaces the current model's selection with the single
// given index.
func (g *Graph) SelectMesh(index int) error {
	m := g.CurrentModel()
	if m == nil {
		return ErrNoModel
	}
	if index < 0 || index >= len(m.MeshContextList) {
		return fmt.Errorf("%w: %d of %d", ErrMeshIndex, index, len(m.MeshContextList))
	}
	m.Selected = []uint16{uint16(index)}
	g.notify(Event{Kind: EventSelection, Index: index})
	return nil
}

// ActiveMesh returns the first selected mesh context of the current
// model, the implicit target for imports and fast-path updates.
func (g *Graph) ActiveMesh() (int, *MeshContext, bool) {
	m := g.CurrentModel()
	if m == nil || len(m.Selected) == 0 {
		return 0, nil, false
	}
	index := int(m.Selected[0])
	if index >= len(m.MeshContextList) {
		return 0, nil, false
	}
	return index, m.MeshContextList[index], true
}

// UpdateAttribute applies the non-nil fields of upd to the context at
// index.
func (g *Graph) UpdateAttribute(index int, upd AttributeUpdate) error {
	ctx, ok := g.MeshAt(index)
	if !ok {
		return fmt.Errorf("%w: %d", ErrMeshIndex, index)
	}
	if upd.Name != nil {
		ctx.Name = *upd.Name
	}
	if upd.Visible != nil {
		ctx.Visible = *upd.Visible
	}
	if upd.Locked != nil {
		ctx.Locked = *upd.Locked
	}
	g.notify(Event{Kind: EventMeshUpdated, Index: index})
	return nil
}

// ImportMesh installs geometry arriving from a client. When a mesh is
// selected the geometry replaces it in place; otherwise a new context
// is appended. Returns the affected index.
func (g *Graph) ImportMesh(mesh *Mesh) (int, error) {
	if index, ctx, ok := g.ActiveMesh(); ok {
		ctx.Mesh = *mesh
		g.notify(Event{Kind: EventMeshUpdated, Index: index})
		return index, nil
	}
	ctx := NewMeshContext("Imported")
	ctx.Mesh = *mesh
	return g.AddMesh(ctx)
}

// ApplyPositions overwrites the active mesh's position buffer, the
// fast path used while a client drags vertices. The count must match.
func (g *Graph) ApplyPositions(positions [][3]float32) (int, error) {
	index, ctx, ok := g.ActiveMesh()
	if !ok {
		return 0, ErrNoModel
	}
	if len(positions) != len(ctx.Mesh.Positions) {
		return 0, fmt.Errorf("%w: got %d, have %d",
			ErrVertexCount, len(positions), len(ctx.Mesh.Positions))
	}
	copy(ctx.Mesh.Positions, positions)
	g.notify(Event{Kind: EventMeshUpdated, Index: index})
	return index, nil
}

// Images returns the scene's image list.
func (g *Graph) Images() []*Image { return g.images }

// AddImage appends a texture to the image list.
func (g *Graph) AddImage(img *Image) {
	g.images = append(g.images, img)
}
