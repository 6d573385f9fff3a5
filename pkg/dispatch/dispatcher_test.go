package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/scenewire/scenewire/pkg/codec"
	"github.com/scenewire/scenewire/pkg/scene"
)

func demoDispatcher(t *testing.T) (*Dispatcher, *scene.Graph) {
	t.Helper()
	g := scene.NewGraph()
	g.Load(scene.DemoProject())
	for _, img := range scene.DemoImages() {
		g.AddImage(img)
	}
	return New(g), g
}

func dispatchJSON(t *testing.T, d *Dispatcher, raw string) *Result {
	t.Helper()
	res := d.Dispatch(context.Background(), []byte(raw))
	if res == nil || res.Response == nil {
		t.Fatal("Dispatch returned no response")
	}
	return res
}

func dataMap(t *testing.T, res *Result) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(res.Response.Data, &m); err != nil {
		t.Fatalf("unmarshaling response data: %v", err)
	}
	return m
}

func TestMeshListDefaults(t *testing.T) {
	d, _ := demoDispatcher(t)
	res := dispatchJSON(t, d, `{"id":"q1","type":"query","target":"meshList"}`)

	if !res.Response.Success {
		t.Fatalf("success = false: %s", res.Response.Error)
	}
	if res.Response.ID == nil || *res.Response.ID != "q1" {
		t.Errorf("id = %v, want q1", res.Response.ID)
	}
	if res.Binary != nil {
		t.Error("meshList produced a binary payload")
	}

	data := dataMap(t, res)
	if data["count"] != float64(2) {
		t.Errorf("count = %v, want 2", data["count"])
	}

	fields, _ := data["fields"].([]any)
	want := []string{"name", "type", "vertexCount", "faceCount", "visible", "locked", "selected"}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	for i, f := range want {
		if fields[i] != f {
			t.Errorf("fields[%d] = %v, want %s", i, fields[i], f)
		}
	}

	meshes, _ := data["meshes"].([]any)
	first, _ := meshes[0].(map[string]any)
	if first["name"] != "Body" || first["vertexCount"] != float64(4) || first["faceCount"] != float64(2) {
		t.Errorf("first mesh = %v", first)
	}
	if first["type"] != "polygon" || first["visible"] != true || first["selected"] != false {
		t.Errorf("first mesh attrs = %v", first)
	}
	second, _ := meshes[1].(map[string]any)
	if second["name"] != "Spine" || second["type"] != "bone" {
		t.Errorf("second mesh = %v", second)
	}
}

func TestMeshListEmptyScene(t *testing.T) {
	d := New(scene.NewGraph())
	res := d.Dispatch(context.Background(), []byte(`{"id":"q1","type":"query","target":"meshList"}`))

	if !res.Response.Success {
		t.Fatalf("success = false: %s", res.Response.Error)
	}
	data := dataMap(t, res)
	if data["count"] != float64(0) {
		t.Errorf("count = %v, want 0", data["count"])
	}
	meshes, ok := data["meshes"].([]any)
	if !ok || len(meshes) != 0 {
		t.Errorf("meshes = %v, want empty list", data["meshes"])
	}
}

func TestMeshListFieldTolerance(t *testing.T) {
	d, _ := demoDispatcher(t)
	// Unknown fields are skipped, known ones match case-insensitively.
	res := dispatchJSON(t, d, `{"id":"q2","type":"query","target":"meshList","fields":["bogus","Name"]}`)

	if !res.Response.Success {
		t.Fatalf("success = false: %s", res.Response.Error)
	}
	data := dataMap(t, res)
	fields, _ := data["fields"].([]any)
	if len(fields) != 1 || fields[0] != "name" {
		t.Fatalf("fields = %v, want [name]", fields)
	}
	meshes, _ := data["meshes"].([]any)
	first, _ := meshes[0].(map[string]any)
	if len(first) != 1 || first["name"] != "Body" {
		t.Errorf("row = %v, want only name", first)
	}
}

func TestMeshData(t *testing.T) {
	d, _ := demoDispatcher(t)
	res := dispatchJSON(t, d, `{"id":"q3","type":"query","target":"meshData","params":{"index":"1"}}`)

	if !res.Response.Success {
		t.Fatalf("success = false: %s", res.Response.Error)
	}
	data := dataMap(t, res)
	if data["index"] != float64(1) {
		t.Errorf("index = %v", data["index"])
	}
	mesh, _ := data["mesh"].(map[string]any)
	if mesh["name"] != "Spine" {
		t.Errorf("mesh = %v", mesh)
	}
}

func TestMeshDataBadIndex(t *testing.T) {
	d, _ := demoDispatcher(t)
	tests := []struct {
		name string
		raw  string
	}{
		{"missing", `{"id":"x","type":"query","target":"meshData"}`},
		{"negative", `{"id":"x","type":"query","target":"meshData","params":{"index":"-1"}}`},
		{"garbage", `{"id":"x","type":"query","target":"meshData","params":{"index":"abc"}}`},
		{"out of range", `{"id":"x","type":"query","target":"meshData","params":{"index":"99"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := dispatchJSON(t, d, tt.raw)
			if res.Response.Success {
				t.Fatal("success = true for bad index")
			}
			if res.Response.ID == nil || *res.Response.ID != "x" {
				t.Errorf("error response id = %v, want x", res.Response.ID)
			}
			if res.Response.Error == "" {
				t.Error("error message empty")
			}
		})
	}
}

func TestModelInfo(t *testing.T) {
	d, g := demoDispatcher(t)
	if err := g.SelectMesh(0); err != nil {
		t.Fatal(err)
	}
	res := dispatchJSON(t, d, `{"id":"q4","type":"query","target":"modelInfo"}`)

	data := dataMap(t, res)
	if data["projectName"] != "Demo" || data["name"] != "Character" {
		t.Errorf("info = %v", data)
	}
	if data["meshCount"] != float64(2) || data["modelCount"] != float64(1) {
		t.Errorf("counts = %v", data)
	}
	selected, _ := data["selected"].([]any)
	if len(selected) != 1 || selected[0] != float64(0) {
		t.Errorf("selected = %v", selected)
	}
}

func TestAvailableFields(t *testing.T) {
	d, _ := demoDispatcher(t)
	d.RegisterField("custom", func(_ *scene.Model, _ int, _ *scene.MeshContext) any { return 42 })

	res := dispatchJSON(t, d, `{"id":"q5","type":"query","target":"availableFields"}`)
	data := dataMap(t, res)
	fields, _ := data["fields"].([]any)

	got := make([]string, len(fields))
	for i, f := range fields {
		got[i], _ = f.(string)
	}
	joined := strings.Join(got, ",")
	if !strings.HasPrefix(joined, "name,type,vertexCount,faceCount,visible,locked,selected") {
		t.Errorf("canonical prefix wrong: %s", joined)
	}
	if !strings.Contains(joined, "custom") {
		t.Errorf("registered field missing: %s", joined)
	}
}

func TestMeshBinary(t *testing.T) {
	d, _ := demoDispatcher(t)
	res := dispatchJSON(t, d, `{"id":"q6","type":"query","target":"meshBinary","params":{"index":"0"}}`)

	if !res.Response.Success {
		t.Fatalf("success = false: %s", res.Response.Error)
	}
	if res.Binary == nil {
		t.Fatal("no binary payload")
	}
	m, ok := codec.PeekMagic(res.Binary)
	if !ok || m != codec.MagicMesh {
		t.Fatalf("binary magic = %v", m)
	}

	data := dataMap(t, res)
	if int(data["binarySize"].(float64)) != len(res.Binary) {
		t.Errorf("binarySize = %v, binary is %d bytes", data["binarySize"], len(res.Binary))
	}
	if data["vertexCount"] != float64(4) {
		t.Errorf("vertexCount = %v", data["vertexCount"])
	}

	mesh, err := codec.DecodeMesh(res.Binary)
	if err != nil {
		t.Fatalf("decoding returned payload: %v", err)
	}
	if mesh.VertexCount() != 4 || mesh.FaceCount() != 2 {
		t.Errorf("decoded mesh %d/%d", mesh.VertexCount(), mesh.FaceCount())
	}
}

func TestMeshBinaryFlagSubset(t *testing.T) {
	d, _ := demoDispatcher(t)
	res := dispatchJSON(t, d,
		`{"id":"q7","type":"query","target":"meshBinary","params":{"index":"0","flags":"1"}}`)

	if !res.Response.Success {
		t.Fatalf("success = false: %s", res.Response.Error)
	}
	mesh, err := codec.DecodeMesh(res.Binary)
	if err != nil {
		t.Fatal(err)
	}
	if mesh.Positions == nil || mesh.Normals != nil || mesh.Faces != nil {
		t.Errorf("flag subset not honored: %+v", mesh)
	}
}

func TestProjectQuery(t *testing.T) {
	d, _ := demoDispatcher(t)
	res := dispatchJSON(t, d, `{"id":"q8","type":"query","target":"project"}`)

	if !res.Response.Success {
		t.Fatalf("success = false: %s", res.Response.Error)
	}
	p, err := codec.DecodeProject(res.Binary)
	if err != nil {
		t.Fatalf("decoding project payload: %v", err)
	}
	if p.Models[0].MeshContextList[0].Name != "Body" {
		t.Errorf("first mesh = %q", p.Models[0].MeshContextList[0].Name)
	}
	data := dataMap(t, res)
	if int(data["binarySize"].(float64)) != len(res.Binary) {
		t.Error("binarySize mismatch")
	}
}

func TestImageListQuery(t *testing.T) {
	d, _ := demoDispatcher(t)
	res := dispatchJSON(t, d, `{"id":"q9","type":"query","target":"imageList"}`)

	if !res.Response.Success {
		t.Fatalf("success = false: %s", res.Response.Error)
	}
	images, err := codec.DecodeImageList(res.Binary)
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 {
		t.Errorf("images = %d, want 2", len(images))
	}
	data := dataMap(t, res)
	if data["count"] != float64(2) {
		t.Errorf("count = %v", data["count"])
	}
}

func TestSelectMeshCommand(t *testing.T) {
	d, g := demoDispatcher(t)
	res := dispatchJSON(t, d, `{"id":"c1","type":"command","action":"selectMesh","params":{"index":"1"}}`)

	if !res.Response.Success {
		t.Fatalf("success = false: %s", res.Response.Error)
	}
	if !g.CurrentModel().IsSelected(1) {
		t.Error("mesh 1 not selected after command")
	}

	for _, bad := range []string{"9", "-1"} {
		res = dispatchJSON(t, d,
			`{"id":"c2","type":"command","action":"selectMesh","params":{"index":"`+bad+`"}}`)
		if res.Response.Success {
			t.Errorf("select index %s succeeded", bad)
		}
		if res.Response.Error == "" {
			t.Errorf("select index %s: error message empty", bad)
		}
		if !g.CurrentModel().IsSelected(1) {
			t.Errorf("failed select %s clobbered the selection", bad)
		}
	}
}

func TestUpdateAttributeCommand(t *testing.T) {
	d, g := demoDispatcher(t)
	res := dispatchJSON(t, d,
		`{"id":"c3","type":"command","action":"updateAttribute","params":{"index":"0","name":"Torso","visible":"false"}}`)

	if !res.Response.Success {
		t.Fatalf("success = false: %s", res.Response.Error)
	}
	ctx, _ := g.MeshAt(0)
	if ctx.Name != "Torso" || ctx.Visible {
		t.Errorf("context after update = %+v", ctx)
	}

	data := dataMap(t, res)
	updated, _ := data["updated"].([]any)
	if len(updated) != 2 {
		t.Errorf("updated = %v", updated)
	}

	res = dispatchJSON(t, d, `{"id":"c4","type":"command","action":"updateAttribute","params":{"index":"0"}}`)
	if res.Response.Success {
		t.Error("update with no attributes succeeded")
	}
}

func TestDispatchErrorEnvelopes(t *testing.T) {
	d, _ := demoDispatcher(t)

	tests := []struct {
		name   string
		raw    string
		wantID *string
	}{
		{"unknown target", `{"id":"e1","type":"query","target":"nonsense"}`, ptr("e1")},
		{"unknown action", `{"id":"e2","type":"command","action":"nonsense"}`, ptr("e2")},
		{"unsupported type", `{"id":"e3","type":"response"}`, ptr("e3")},
		{"missing type", `{"id":"e4"}`, ptr("e4")},
		{"malformed json", `{"id":"e5",`, nil},
		{"not json at all", `hello`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := dispatchJSON(t, d, tt.raw)
			if res.Response.Success {
				t.Fatal("success = true")
			}
			if res.Response.Error == "" {
				t.Error("error message empty")
			}
			switch {
			case tt.wantID == nil && res.Response.ID != nil:
				t.Errorf("id = %q, want null", *res.Response.ID)
			case tt.wantID != nil && (res.Response.ID == nil || *res.Response.ID != *tt.wantID):
				t.Errorf("id = %v, want %q", res.Response.ID, *tt.wantID)
			}
		})
	}
}

func TestDispatchNullIDMarshalsAsNull(t *testing.T) {
	d, _ := demoDispatcher(t)
	res := dispatchJSON(t, d, `not json`)
	raw, err := res.Response.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(raw, []byte(`"id":null`)) {
		t.Errorf("marshaled error envelope = %s", raw)
	}
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	d, _ := demoDispatcher(t)
	d.RegisterQuery("explode", func(Scene, *Request) (any, []byte, error) {
		panic("boom")
	})

	res := dispatchJSON(t, d, `{"id":"p1","type":"query","target":"explode"}`)
	if res.Response.Success {
		t.Fatal("success = true after panic")
	}
	if res.Response.ID == nil || *res.Response.ID != "p1" {
		t.Errorf("id = %v, want p1", res.Response.ID)
	}
	if !strings.Contains(res.Response.Error, "internal error") {
		t.Errorf("error = %q", res.Response.Error)
	}

	// The dispatcher keeps working afterwards.
	res = dispatchJSON(t, d, `{"id":"p2","type":"query","target":"meshList"}`)
	if !res.Response.Success {
		t.Errorf("dispatch after panic failed: %s", res.Response.Error)
	}
}

func TestPushForEvent(t *testing.T) {
	d, _ := demoDispatcher(t)

	tests := []struct {
		name      string
		ev        scene.Event
		wantEvent string
		wantKey   string
		wantVal   float64
	}{
		{"mesh list", scene.Event{Kind: scene.EventMeshList, Index: -1}, PushMeshListChanged, "count", 2},
		{"mesh updated", scene.Event{Kind: scene.EventMeshUpdated, Index: 1}, PushMeshUpdated, "index", 1},
		{"selection", scene.Event{Kind: scene.EventSelection, Index: 0}, PushSelectionChanged, "index", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := d.PushForEvent(tt.ev)
			if err != nil {
				t.Fatalf("PushForEvent error: %v", err)
			}
			if !bytes.Contains(raw, []byte(`"id":null`)) {
				t.Errorf("push id not null: %s", raw)
			}

			push, err := ParsePush(raw)
			if err != nil {
				t.Fatalf("ParsePush error: %v", err)
			}
			if push.Event != tt.wantEvent {
				t.Errorf("event = %q, want %q", push.Event, tt.wantEvent)
			}
			var data map[string]any
			if err := json.Unmarshal(push.Data, &data); err != nil {
				t.Fatal(err)
			}
			if data[tt.wantKey] != tt.wantVal {
				t.Errorf("data[%s] = %v, want %v", tt.wantKey, data[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func ptr(s string) *string { return &s }
