package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scenewire/scenewire/pkg/client"
	"github.com/scenewire/scenewire/pkg/codec"
	"github.com/scenewire/scenewire/pkg/dispatch"
	"github.com/scenewire/scenewire/pkg/scene"
)

func queryCmd() *cobra.Command {
	var (
		url     string
		index   int
		fields  []string
		flags   uint32
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query <target>",
		Short: "Query a running scene server",
		Long: `Send one query to a running scene server and print the result.

Built-in targets: meshList, meshData, modelInfo, availableFields,
meshBinary, project, imageList. Unknown targets are sent as-is and
their response data printed as JSON.

Examples:
  scenewire query meshList
  scenewire query meshData --index=1 --fields=name,type,vertexCount
  scenewire query meshBinary --index=0 --flags=1
  scenewire query project --url=ws://build-host:8765/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(url, args[0], index, fields, flags, timeout)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "ws://127.0.0.1:8765/", "Server URL")
	cmd.Flags().IntVarP(&index, "index", "i", 0, "Mesh context index")
	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "Mesh fields to request")
	cmd.Flags().Uint32Var(&flags, "flags", 0, "Mesh section bits for meshBinary (0 = all)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	return cmd
}

func runQuery(url, target string, index int, fields []string, flags uint32, timeout time.Duration) error {
	ctx := context.Background()
	c, err := client.Dial(ctx, url, client.WithRequestTimeout(timeout))
	if err != nil {
		return err
	}
	defer c.Close()

	switch target {
	case "meshList":
		rows, err := c.MeshList(ctx, fields...)
		if err != nil {
			return err
		}
		columns := fields
		if len(columns) == 0 {
			columns = dispatch.DefaultMeshFields
		}
		return printTable(rows, columns)

	case "meshData":
		row, err := c.MeshData(ctx, index, fields...)
		if err != nil {
			return err
		}
		printKV(row)
		return nil

	case "modelInfo":
		info, err := c.ModelInfo(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("project:  %s\n", info.ProjectName)
		fmt.Printf("models:   %d (current %d)\n", info.ModelCount, info.Index)
		fmt.Printf("model:    %s\n", info.Name)
		fmt.Printf("meshes:   %d\n", info.MeshCount)
		fmt.Printf("category: %d\n", info.ActiveCategory)
		fmt.Printf("selected: %v\n", info.Selected)
		return nil

	case "availableFields":
		names, err := c.AvailableFields(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "meshBinary":
		mesh, err := c.MeshBinary(ctx, index, codec.FieldFlags(flags))
		if err != nil {
			return err
		}
		printMeshSummary(mesh)
		return nil

	case "project":
		project, err := c.Project(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("project: %s\n", project.Name)
		for i, model := range project.Models {
			marker := " "
			if i == int(project.CurrentModel) {
				marker = "*"
			}
			fmt.Printf("%s model %d: %s (%d contexts, %d selected)\n",
				marker, i, model.Name, len(model.MeshContextList), len(model.Selected))
		}
		return nil

	case "imageList":
		images, err := c.ImageList(ctx)
		if err != nil {
			return err
		}
		for _, img := range images {
			fmt.Printf("image %d: %s %dx%d, %d bytes\n",
				img.ID, img.Format, img.Width, img.Height, len(img.Data))
		}
		return nil

	default:
		resp, err := c.Query(ctx, target, map[string]string{"index": strconv.Itoa(index)}, fields...)
		if err != nil {
			return err
		}
		var pretty any
		if err := json.Unmarshal(resp.Data, &pretty); err != nil {
			return err
		}
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
}

func printTable(rows []map[string]any, columns []string) error {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for i, col := range columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		for i, col := range columns {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprintf(w, "%v", row[col])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func printKV(row map[string]any) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s: %v\n", k, row[k])
	}
}

func printMeshSummary(mesh *scene.Mesh) {
	fmt.Printf("vertices: %d\n", mesh.VertexCount())
	fmt.Printf("faces:    %d\n", mesh.FaceCount())
	sections := []struct {
		name    string
		present bool
	}{
		{"positions", len(mesh.Positions) > 0},
		{"normals", len(mesh.Normals) > 0},
		{"uvs", len(mesh.UVs) > 0},
		{"boneWeights", len(mesh.BoneWeights) > 0},
		{"vertexFlags", len(mesh.VertexFlags) > 0},
		{"vertexIDs", len(mesh.VertexIDs) > 0},
	}
	fmt.Print("sections: ")
	first := true
	for _, s := range sections {
		if !s.present {
			continue
		}
		if !first {
			fmt.Print(", ")
		}
		fmt.Print(s.name)
		first = false
	}
	fmt.Println()
}
