package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scenewire/scenewire/pkg/client"
	"github.com/scenewire/scenewire/pkg/codec"
	"github.com/scenewire/scenewire/pkg/dispatch"
	"github.com/scenewire/scenewire/pkg/scene"
	"github.com/scenewire/scenewire/pkg/server"
)

// startServer runs a scene server around the demo project and returns
// its WebSocket URL.
func startServer(t *testing.T, mutate func(*server.Config)) string {
	t.Helper()

	graph := scene.NewGraph()
	graph.Load(scene.DemoProject())
	for _, img := range scene.DemoImages() {
		graph.AddImage(img)
	}

	cfg := &server.Config{
		Addr:         "127.0.0.1:0",
		TickInterval: time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry:     prometheus.NewRegistry(),
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv := server.New(graph, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	var addr net.Addr
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr = srv.Addr(); addr != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == nil {
		t.Fatal("server never bound")
	}
	return "ws://" + addr.String() + "/"
}

func dial(t *testing.T, url string, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), url, opts...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// waitPush reads pushes until one matches event.
func waitPush(t *testing.T, c *client.Client, event string) *dispatch.Push {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case p, ok := <-c.Pushes():
			if !ok {
				t.Fatal("push channel closed")
			}
			if p.Event == event {
				return p
			}
		case <-timeout:
			t.Fatalf("no %q push within 2s", event)
		}
	}
}

func TestMeshList(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	rows, err := c.MeshList(context.Background())
	if err != nil {
		t.Fatalf("meshList: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["name"] != "Body" || rows[1]["name"] != "Spine" {
		t.Fatalf("names = %v, %v; want Body, Spine", rows[0]["name"], rows[1]["name"])
	}
	if rows[1]["type"] != "bone" {
		t.Errorf("spine type = %v, want bone", rows[1]["type"])
	}
}

func TestMeshBinaryDecodes(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	mesh, err := c.MeshBinary(context.Background(), 0, codec.FieldAll)
	if err != nil {
		t.Fatalf("meshBinary: %v", err)
	}
	if mesh.VertexCount() != 4 || mesh.FaceCount() != 2 {
		t.Fatalf("mesh %dv/%df, want 4v/2f", mesh.VertexCount(), mesh.FaceCount())
	}

	positions, err := c.MeshBinary(context.Background(), 0, codec.FieldPositions)
	if err != nil {
		t.Fatalf("positions-only meshBinary: %v", err)
	}
	if len(positions.Positions) != 4 || len(positions.Normals) != 0 {
		t.Fatalf("subset fetch carried %d positions, %d normals; want 4, 0",
			len(positions.Positions), len(positions.Normals))
	}
}

func TestProjectAndImageList(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	project, err := c.Project(context.Background())
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if project.Name != "Demo" {
		t.Errorf("project name = %q, want Demo", project.Name)
	}
	model := project.Current()
	if model == nil || len(model.MeshContextList) != 2 {
		t.Fatalf("current model = %+v, want 2 contexts", model)
	}
	if model.MeshContextList[0].Mesh.VertexCount() != 4 {
		t.Errorf("embedded mesh lost geometry")
	}

	images, err := c.ImageList(context.Background())
	if err != nil {
		t.Fatalf("imageList: %v", err)
	}
	if len(images) != 2 || images[0].Format != scene.ImagePNG {
		t.Fatalf("images = %d, want 2 with PNG first", len(images))
	}
}

func TestModelInfoAndAvailableFields(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	info, err := c.ModelInfo(context.Background())
	if err != nil {
		t.Fatalf("modelInfo: %v", err)
	}
	if info.ProjectName != "Demo" || info.Name != "Character" || info.MeshCount != 2 {
		t.Fatalf("info = %+v", info)
	}

	fields, err := c.AvailableFields(context.Background())
	if err != nil {
		t.Fatalf("availableFields: %v", err)
	}
	seen := map[string]bool{}
	for _, f := range fields {
		seen[f] = true
	}
	for _, want := range dispatch.DefaultMeshFields {
		if !seen[want] {
			t.Errorf("availableFields missing %q", want)
		}
	}
}

func TestSelectMeshPush(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	if err := c.SelectMesh(context.Background(), 1); err != nil {
		t.Fatalf("selectMesh: %v", err)
	}
	waitPush(t, c, dispatch.PushSelectionChanged)

	info, err := c.ModelInfo(context.Background())
	if err != nil {
		t.Fatalf("modelInfo: %v", err)
	}
	if len(info.Selected) != 1 || info.Selected[0] != 1 {
		t.Fatalf("selected = %v, want [1]", info.Selected)
	}
}

func TestUpdateAttribute(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	name := "Torso"
	locked := true
	err := c.UpdateAttribute(context.Background(), 0, scene.AttributeUpdate{Name: &name, Locked: &locked})
	if err != nil {
		t.Fatalf("updateAttribute: %v", err)
	}
	waitPush(t, c, dispatch.PushMeshUpdated)

	row, err := c.MeshData(context.Background(), 0, "name", "locked")
	if err != nil {
		t.Fatalf("meshData: %v", err)
	}
	if row["name"] != "Torso" || row["locked"] != true {
		t.Fatalf("row = %v, want Torso/locked", row)
	}
}

func TestImportMeshAppends(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	tri := &scene.Mesh{
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Faces:     []scene.Face{{Vertices: []uint32{0, 1, 2}}},
	}
	if err := c.ImportMesh(context.Background(), tri, codec.FieldPositions|codec.FieldFaces); err != nil {
		t.Fatalf("importMesh: %v", err)
	}
	waitPush(t, c, dispatch.PushMeshListChanged)

	rows, err := c.MeshList(context.Background())
	if err != nil {
		t.Fatalf("meshList: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows after import, want 3", len(rows))
	}
	if rows[2]["name"] != "Imported" {
		t.Errorf("imported row name = %v", rows[2]["name"])
	}
}

func TestSendPositions(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	if err := c.SelectMesh(context.Background(), 0); err != nil {
		t.Fatalf("selectMesh: %v", err)
	}
	waitPush(t, c, dispatch.PushSelectionChanged)

	moved := &scene.Mesh{Positions: [][3]float32{
		{5, 5, 5}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0},
	}}
	if err := c.SendPositions(context.Background(), moved); err != nil {
		t.Fatalf("sendPositions: %v", err)
	}
	waitPush(t, c, dispatch.PushMeshUpdated)

	mesh, err := c.MeshBinary(context.Background(), 0, codec.FieldPositions)
	if err != nil {
		t.Fatalf("meshBinary: %v", err)
	}
	if mesh.Positions[0] != [3]float32{5, 5, 5} {
		t.Fatalf("positions[0] = %v, want [5 5 5]", mesh.Positions[0])
	}
}

func TestServerErrorWrapped(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	err := c.SelectMesh(context.Background(), 99)
	if !errors.Is(err, client.ErrServer) {
		t.Fatalf("err = %v, want ErrServer", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	url := startServer(t, func(cfg *server.Config) {
		cfg.TickInterval = time.Hour // queue accepts but never drains
	})
	c := dial(t, url, client.WithRequestTimeout(100*time.Millisecond))

	_, err := c.MeshList(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestConcurrentQueries(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := c.MeshList(context.Background())
			if err == nil && len(rows) != 2 {
				err = errors.New("wrong row count")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent query: %v", err)
		}
	}
}

func TestRequestsAfterClose(t *testing.T) {
	url := startServer(t, nil)
	c := dial(t, url)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := c.MeshList(context.Background()); !errors.Is(err, client.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
