package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scenewire/scenewire/pkg/codec"
	"github.com/scenewire/scenewire/pkg/scene"
)

// tracerName identifies this package's spans.
const tracerName = "scenewire/dispatch"

// Scene is the capability surface the dispatcher needs from the host.
// *scene.Graph satisfies it; embedders with their own scene storage
// can provide an adapter.
type Scene interface {
	Project() *scene.Project
	CurrentModel() *scene.Model
	MeshCount() int
	MeshAt(index int) (*scene.MeshContext, bool)
	Images() []*scene.Image
	SelectMesh(index int) error
	UpdateAttribute(index int, upd scene.AttributeUpdate) error
}

// QueryFunc handles one query target. It returns the response data
// and, for binary targets, the payload to send after the response.
type QueryFunc func(s Scene, req *Request) (any, []byte, error)

// ActionFunc handles one command action and returns the response data.
type ActionFunc func(s Scene, req *Request) (any, error)

// Dispatcher routes request envelopes to handlers. All registration
// must happen before serving; Dispatch itself is then called from the
// single host loop.
type Dispatcher struct {
	scene   Scene
	fields  *FieldRegistry
	queries map[string]QueryFunc
	actions map[string]ActionFunc
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New builds a dispatcher with the built-in query targets and command
// actions registered.
func New(s Scene, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		scene:   s,
		fields:  newFieldRegistry(),
		queries: make(map[string]QueryFunc, 8),
		actions: make(map[string]ActionFunc, 4),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatch")

	d.RegisterQuery("meshList", queryMeshList(d.fields))
	d.RegisterQuery("meshData", queryMeshData(d.fields))
	d.RegisterQuery("modelInfo", queryModelInfo)
	d.RegisterQuery("availableFields", queryAvailableFields(d.fields))
	d.RegisterQuery("meshBinary", queryMeshBinary)
	d.RegisterQuery("project", queryProject)
	d.RegisterQuery("imageList", queryImageList)

	d.RegisterAction("selectMesh", actionSelectMesh)
	d.RegisterAction("updateAttribute", actionUpdateAttribute)
	return d
}

// RegisterQuery adds or replaces a query target.
func (d *Dispatcher) RegisterQuery(target string, fn QueryFunc) {
	d.queries[target] = fn
}

// RegisterAction adds or replaces a command action.
func (d *Dispatcher) RegisterAction(name string, fn ActionFunc) {
	d.actions[name] = fn
}

// RegisterField adds a mesh field available to meshList and meshData.
func (d *Dispatcher) RegisterField(name string, fn FieldValueFunc) {
	d.fields.Register(name, fn)
}

// Dispatch handles one raw request envelope and always returns a
// result to write back. A malformed envelope yields an error response
// with a null id; a handler panic yields an error response for that
// request only.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (result *Result) {
	req, err := ParseRequest(raw)
	if err != nil {
		d.logger.Warn("malformed request", "error", err)
		return errorResult(nil, err.Error())
	}
	if req.Type == "" {
		return errorResult(req.ID, "missing envelope type")
	}

	_, span := d.tracer.Start(ctx, req.Type+" "+req.Name(),
		trace.WithAttributes(
			attribute.String("envelope.type", req.Type),
			attribute.String("envelope.name", req.Name()),
		))
	defer span.End()
	if req.ID != nil {
		span.SetAttributes(attribute.String("envelope.id", *req.ID))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic", "name", req.Name(), "panic", r)
			span.SetStatus(codes.Error, "handler panic")
			result = errorResult(req.ID, fmt.Sprintf("internal error: %v", r))
		}
		if result != nil && !result.Response.Success {
			span.SetStatus(codes.Error, result.Response.Error)
		}
	}()

	switch req.Type {
	case TypeQuery:
		return d.dispatchQuery(req)
	case TypeCommand:
		return d.dispatchCommand(req)
	default:
		return errorResult(req.ID, fmt.Sprintf("unsupported envelope type %q", req.Type))
	}
}

func (d *Dispatcher) dispatchQuery(req *Request) *Result {
	fn, ok := d.queries[req.Target]
	if !ok {
		return errorResult(req.ID, fmt.Sprintf("unknown query target %q", req.Target))
	}
	data, binary, err := fn(d.scene, req)
	if err != nil {
		return errorResult(req.ID, err.Error())
	}
	res := okResult(req.ID, data)
	res.Binary = binary
	return res
}

func (d *Dispatcher) dispatchCommand(req *Request) *Result {
	fn, ok := d.actions[req.Action]
	if !ok {
		return errorResult(req.ID, fmt.Sprintf("unknown command action %q", req.Action))
	}
	data, err := fn(d.scene, req)
	if err != nil {
		return errorResult(req.ID, err.Error())
	}
	return okResult(req.ID, data)
}

// requireIndex extracts the mandatory mesh index parameter.
func requireIndex(req *Request) (int, error) {
	if !req.Params.Has("index") {
		return 0, fmt.Errorf("missing required param %q", "index")
	}
	index := req.Params.Int("index", -1)
	if index < 0 {
		return 0, fmt.Errorf("invalid index %q", req.Params.String("index", ""))
	}
	return index, nil
}

func queryMeshList(fields *FieldRegistry) QueryFunc {
	return func(s Scene, req *Request) (any, []byte, error) {
		names, funcs := fields.Resolve(req.Fields)
		model := s.CurrentModel()

		meshes := make([]map[string]any, 0, s.MeshCount())
		if model != nil {
			for i, ctx := range model.MeshContextList {
				meshes = append(meshes, row(names, funcs, model, i, ctx))
			}
		}
		return map[string]any{
			"meshes": meshes,
			"count":  len(meshes),
			"fields": names,
		}, nil, nil
	}
}

func queryMeshData(fields *FieldRegistry) QueryFunc {
	return func(s Scene, req *Request) (any, []byte, error) {
		index, err := requireIndex(req)
		if err != nil {
			return nil, nil, err
		}
		ctx, ok := s.MeshAt(index)
		if !ok {
			return nil, nil, fmt.Errorf("mesh index %d out of range", index)
		}
		names, funcs := fields.Resolve(req.Fields)
		return map[string]any{
			"index":  index,
			"mesh":   row(names, funcs, s.CurrentModel(), index, ctx),
			"fields": names,
		}, nil, nil
	}
}

func queryModelInfo(s Scene, _ *Request) (any, []byte, error) {
	p := s.Project()
	model := s.CurrentModel()
	info := map[string]any{
		"projectName": p.Name,
		"modelCount":  len(p.Models),
		"index":       int(p.CurrentModel),
	}
	if model != nil {
		selected := make([]int, len(model.Selected))
		for i, v := range model.Selected {
			selected[i] = int(v)
		}
		info["name"] = model.Name
		info["meshCount"] = len(model.MeshContextList)
		info["activeCategory"] = int(model.ActiveCategory)
		info["selected"] = selected
	}
	return info, nil, nil
}

func queryAvailableFields(fields *FieldRegistry) QueryFunc {
	return func(Scene, *Request) (any, []byte, error) {
		return map[string]any{"fields": fields.Names()}, nil, nil
	}
}

func queryMeshBinary(s Scene, req *Request) (any, []byte, error) {
	index, err := requireIndex(req)
	if err != nil {
		return nil, nil, err
	}
	ctx, ok := s.MeshAt(index)
	if !ok {
		return nil, nil, fmt.Errorf("mesh index %d out of range", index)
	}
	flags := codec.FieldFlags(req.Params.Uint32("flags", uint32(codec.FieldAll)))
	binary, err := codec.EncodeMesh(&ctx.Mesh, flags)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding mesh %d: %v", index, err)
	}
	data := map[string]any{
		"index":       index,
		"flags":       uint32(flags),
		"vertexCount": ctx.Mesh.VertexCount(),
		"faceCount":   ctx.Mesh.FaceCount(),
		"binarySize":  len(binary),
	}
	return data, binary, nil
}

func queryProject(s Scene, _ *Request) (any, []byte, error) {
	p := s.Project()
	binary, err := codec.EncodeProject(p)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding project: %v", err)
	}
	data := map[string]any{
		"name":         p.Name,
		"modelCount":   len(p.Models),
		"currentModel": int(p.CurrentModel),
		"binarySize":   len(binary),
	}
	return data, binary, nil
}

func queryImageList(s Scene, _ *Request) (any, []byte, error) {
	images := s.Images()
	binary, err := codec.EncodeImageList(images)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding image list: %v", err)
	}
	data := map[string]any{
		"count":      len(images),
		"binarySize": len(binary),
	}
	return data, binary, nil
}

func actionSelectMesh(s Scene, req *Request) (any, error) {
	index, err := requireIndex(req)
	if err != nil {
		return nil, err
	}
	if err := s.SelectMesh(index); err != nil {
		return nil, err
	}
	return map[string]any{"index": index}, nil
}

func actionUpdateAttribute(s Scene, req *Request) (any, error) {
	index, err := requireIndex(req)
	if err != nil {
		return nil, err
	}

	var upd scene.AttributeUpdate
	updated := make([]string, 0, 3)
	if req.Params.Has("name") {
		name := req.Params.String("name", "")
		upd.Name = &name
		updated = append(updated, "name")
	}
	if req.Params.Has("visible") {
		v := req.Params.Bool("visible", true)
		upd.Visible = &v
		updated = append(updated, "visible")
	}
	if req.Params.Has("locked") {
		v := req.Params.Bool("locked", false)
		upd.Locked = &v
		updated = append(updated, "locked")
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("no updatable attributes in params")
	}

	if err := s.UpdateAttribute(index, upd); err != nil {
		return nil, err
	}
	return map[string]any{"index": index, "updated": updated}, nil
}
