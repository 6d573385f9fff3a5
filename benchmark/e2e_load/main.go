// Scenewire E2E Load Benchmark
//
// This benchmark answers the questions that matter when many tools mirror one
// scene at once:
// - What is the p50/p95/p99 query round trip under concurrent load?
// - How expensive is push fanout when clients keep mutating the selection?
// - How much allocation + GC work does that load generate?
//
// It runs the real scenewire TCP server and drives N concurrent mirror clients
// over real WebSocket connections. Each client alternates meshList queries with
// full binary mesh fetches against a synthetic grid model, and optionally issues
// a selectMesh command every few requests so every connected client receives
// the resulting push.
//
// Each request is response-gated, so the RTT covers:
// client send → server decode → host tick → handler → payload encode → WS write → client read/decode
//
// Run:
//   cd benchmark/e2e_load
//   go run . -clients=100 -duration=15s -rps=5 -verts=1000 -select-every=10
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/scenewire/scenewire/pkg/client"
	"github.com/scenewire/scenewire/pkg/scene"
	"github.com/scenewire/scenewire/pkg/server"
)

func main() {
	var (
		clients     = flag.Int("clients", 100, "number of concurrent mirror clients")
		duration    = flag.Duration("duration", 15*time.Second, "how long to run the load test")
		rps         = flag.Float64("rps", 5, "target requests/sec per client (best-effort, response-gated)")
		verts       = flag.Int("verts", 1000, "vertex count of the synthetic mesh (affects codec + transfer cost)")
		selectEvery = flag.Int("select-every", 10, "issue a selectMesh command every Nth request (0 disables; each one fans a push out to every client)")
	)
	flag.Parse()

	if *clients <= 0 {
		log.Fatal("-clients must be > 0")
	}
	if *duration <= 0 {
		log.Fatal("-duration must be > 0")
	}
	if *rps <= 0 {
		log.Fatal("-rps must be > 0")
	}
	if *verts < 4 {
		log.Fatal("-verts must be >= 4")
	}
	if *selectEvery < 0 {
		log.Fatal("-select-every must be >= 0")
	}

	// Reduce incidental variability a bit.
	debug.SetGCPercent(100)

	project, vertexCount, faceCount := benchProject(*verts)
	graph := scene.NewGraph()
	graph.Load(project)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.New(graph, &server.Config{
		Addr:         "127.0.0.1:0",
		TickInterval: time.Millisecond,
		TickBudget:   512,
		QueueSize:    4096,
		Logger:       quiet,
		Registry:     prometheus.NewRegistry(),
	})

	srvCtx, srvCancel := context.WithCancel(context.Background())
	srvDone := make(chan error, 1)
	go func() {
		srvDone <- srv.Run(srvCtx)
	}()
	defer func() {
		srvCancel()
		select {
		case <-srvDone:
		case <-time.After(5 * time.Second):
			log.Print("server did not shut down in time")
		}
	}()

	for srv.Addr() == nil {
		select {
		case err := <-srvDone:
			log.Fatalf("server: %v", err)
		case <-time.After(time.Millisecond):
		}
	}
	wsURL := "ws://" + srv.Addr().String() + "/"

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	samplesCh := make(chan time.Duration, 1024)
	var samples []time.Duration
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samples = append(samples, rtt)
		}
	}()

	var (
		totalRequests atomic.Uint64
		totalErrors   atomic.Uint64
		pushesSeen    atomic.Uint64
		pushesDropped atomic.Uint64
	)

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readRuntimeMetrics()

	var wg sync.WaitGroup
	wg.Add(*clients)
	for i := 0; i < *clients; i++ {
		go func() {
			defer wg.Done()
			err := runClient(ctx, wsURL, *rps, *selectEvery, quiet, samplesCh,
				&totalRequests, &pushesSeen, &pushesDropped)
			if err != nil {
				totalErrors.Add(1)
				log.Printf("client: %v", err)
			}
		}()
	}

	wg.Wait()
	close(samplesCh)
	<-collectorDone

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readRuntimeMetrics()

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	total := totalRequests.Load()
	runSeconds := math.Max(0.001, (*duration).Seconds())

	fmt.Println("=== Scenewire E2E Load Benchmark ===")
	fmt.Printf("Clients: %d\n", *clients)
	fmt.Printf("Duration: %s\n", (*duration).String())
	fmt.Printf("Target per-client rate: %.2f req/s\n", *rps)
	fmt.Printf("Mesh: %d vertices, %d faces\n", vertexCount, faceCount)
	fmt.Printf("Total requests: %d\n", total)
	fmt.Printf("Errors: %d\n", totalErrors.Load())
	fmt.Printf("Throughput: %.1f req/s\n", float64(total)/runSeconds)
	fmt.Printf("Pushes received: %d (%d dropped by full client buffers)\n",
		pushesSeen.Load(), pushesDropped.Load())
	fmt.Println()

	if len(samples) == 0 {
		fmt.Println("No latency samples recorded.")
	} else {
		fmt.Println("RTT (request write → response + payload decode):")
		fmt.Printf("  min: %s\n", samples[0])
		fmt.Printf("  p50: %s\n", percentile(samples, 0.50))
		fmt.Printf("  p95: %s\n", percentile(samples, 0.95))
		fmt.Printf("  p99: %s\n", percentile(samples, 0.99))
		fmt.Printf("  max: %s\n", samples[len(samples)-1])
	}
	fmt.Println()

	gcCount := after.NumGC - before.NumGC
	var avgPause time.Duration
	if gcCount > 0 {
		avgPause = time.Duration((after.PauseTotalNs - before.PauseTotalNs) / uint64(gcCount))
	}

	fmt.Println("Go runtime / GC (process-wide):")
	fmt.Printf("  alloc:     %.2f MB\n", float64(after.TotalAlloc-before.TotalAlloc)/(1024*1024))
	fmt.Printf("  heap_live: %.2f MB\n", float64(after.HeapAlloc)/(1024*1024))
	fmt.Printf("  num_gc:    %d\n", gcCount)
	fmt.Printf("  gc_pause:  %s (total), %s (avg)\n",
		time.Duration(after.PauseTotalNs-before.PauseTotalNs), avgPause)
	fmt.Printf("  gc_cpu:    %.2f%%\n", 100*gcCPUFraction(afterMetrics, beforeMetrics))
	fmt.Printf("  allocs:    %.2f M objects\n",
		float64(afterMetrics.heapAllocsObjects-beforeMetrics.heapAllocsObjects)/1_000_000)
}

func runClient(
	ctx context.Context,
	wsURL string,
	rps float64,
	selectEvery int,
	logger *slog.Logger,
	samples chan<- time.Duration,
	totalRequests, pushesSeen, pushesDropped *atomic.Uint64,
) error {
	c, err := client.Dial(ctx, wsURL,
		client.WithLogger(logger),
		client.WithPushBuffer(256),
		client.WithRequestTimeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() {
		pushesDropped.Add(c.PushesDropped())
		c.Close()
	}()

	// Under fanout load it is normal for more pushes to arrive than this
	// client consumes; the drain keeps the buffer from filling while the
	// request loop is response-gated.
	go func() {
		for range c.Pushes() {
			pushesSeen.Add(1)
		}
	}()

	period := time.Duration(float64(time.Second) / rps)
	var seq uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		seq++
		start := time.Now()

		switch {
		case selectEvery > 0 && seq%uint64(selectEvery) == 0:
			err = c.SelectMesh(ctx, int(seq/uint64(selectEvery))%2)
		case seq%2 == 0:
			_, err = c.MeshBinary(ctx, 0, 0)
		default:
			_, err = c.MeshList(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("request %d: %w", seq, err)
		}

		rtt := time.Since(start)
		totalRequests.Add(1)
		samples <- rtt

		// Best-effort pacing. Gating on the response keeps the measurement
		// honest about queueing and tail behavior.
		if sleep := period - rtt; sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

// benchProject builds a project with a grid surface of roughly the requested
// vertex count plus a bone context, so selectMesh has two targets to alternate
// between. Returns the actual vertex and face counts.
func benchProject(verts int) (*scene.Project, int, int) {
	dim := int(math.Sqrt(float64(verts)))
	if dim < 2 {
		dim = 2
	}

	mesh := scene.Mesh{
		Positions: make([][3]float32, 0, dim*dim),
		Normals:   make([][3]float32, 0, dim*dim),
		UVs:       make([][2]float32, 0, dim*dim),
	}
	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			mesh.Positions = append(mesh.Positions, [3]float32{float32(x), float32(y), 0})
			mesh.Normals = append(mesh.Normals, [3]float32{0, 0, 1})
			mesh.UVs = append(mesh.UVs, [2]float32{
				float32(x) / float32(dim-1),
				float32(y) / float32(dim-1),
			})
		}
	}
	for y := 0; y < dim-1; y++ {
		for x := 0; x < dim-1; x++ {
			a := uint32(y*dim + x)
			b := a + 1
			d := a + uint32(dim)
			e := d + 1
			mesh.Faces = append(mesh.Faces,
				scene.Face{Vertices: []uint32{a, b, e}, ID: uint32(len(mesh.Faces))},
				scene.Face{Vertices: []uint32{a, e, d}, ID: uint32(len(mesh.Faces) + 1)},
			)
		}
	}

	surface := scene.NewMeshContext("Surface")
	surface.Mesh = mesh

	guide := scene.NewMeshContext("Guide")
	guide.Type = scene.MeshBone
	guide.HasBone = true
	guide.BoneHead = [3]float32{0, 0, 0}
	guide.BoneTail = [3]float32{0, float32(dim), 0}

	project := &scene.Project{
		Name: "Benchmark",
		Models: []*scene.Model{
			{Name: "Bench", MeshContextList: []*scene.MeshContext{surface, guide}},
		},
	}
	return project, len(mesh.Positions), len(mesh.Faces)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type runtimeMetricsSnapshot struct {
	cpuTotalSeconds   float64
	cpuGCSeconds      float64
	heapAllocsObjects uint64
}

func readRuntimeMetrics() runtimeMetricsSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
		{Name: "/gc/heap/allocs:objects"},
	}
	metrics.Read(samples)

	var out runtimeMetricsSnapshot
	for _, s := range samples {
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotalSeconds = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGCSeconds = s.Value.Float64()
		case "/gc/heap/allocs:objects":
			out.heapAllocsObjects = s.Value.Uint64()
		}
	}
	return out
}

func gcCPUFraction(after, before runtimeMetricsSnapshot) float64 {
	total := after.cpuTotalSeconds - before.cpuTotalSeconds
	if total <= 0 {
		return 0
	}
	gc := after.cpuGCSeconds - before.cpuGCSeconds
	if gc < 0 {
		return 0
	}
	return gc / total
}
